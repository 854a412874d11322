package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/domain"
)

// ringCapacity bounds how many entries stay queryable in memory; the
// file itself keeps everything.
const ringCapacity = 20

// FileLog is an append-only event log backed by a plain text file, one
// entry per line. The most recent entries are mirrored in memory so
// status queries never read the file back.
type FileLog struct {
	mu   sync.Mutex
	path string
	file *os.File
	ring []domain.Entry
}

// Open creates the log file if needed and seeds the in-memory ring
// from the tail of an existing file.
func Open(path string) (*FileLog, error) {
	if path == "" {
		return nil, fmt.Errorf("event log path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create event log dir: %w", err)
		}
	}

	ring, err := loadTail(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	return &FileLog{path: path, file: file, ring: ring}, nil
}

func (l *FileLog) Append(e domain.Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	e.Message = flattenMessage(e.Message)

	line := fmt.Sprintf("%s %s %s\n", e.At.UTC().Format(time.RFC3339), e.Kind, e.Message)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	l.ring = append(l.ring, e)
	if len(l.ring) > ringCapacity {
		l.ring = l.ring[len(l.ring)-ringCapacity:]
	}
	return nil
}

// Recent returns up to n entries in chronological order. n <= 0 means
// everything the ring holds.
func (l *FileLog) Recent(n int) ([]domain.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.ring) {
		n = len(l.ring)
	}
	out := make([]domain.Entry, n)
	copy(out, l.ring[len(l.ring)-n:])
	return out, nil
}

func (l *FileLog) Path() string { return l.path }

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func loadTail(path string) ([]domain.Entry, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}

	var ring []domain.Entry
	for _, line := range strings.Split(string(raw), "\n") {
		entry, ok := parseLine(line)
		if !ok {
			continue
		}
		ring = append(ring, entry)
		if len(ring) > ringCapacity {
			ring = ring[len(ring)-ringCapacity:]
		}
	}
	return ring, nil
}

func parseLine(line string) (domain.Entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return domain.Entry{}, false
	}
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return domain.Entry{}, false
	}
	at, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return domain.Entry{}, false
	}
	entry := domain.Entry{At: at, Kind: domain.EntryKind(fields[1])}
	if len(fields) == 3 {
		entry.Message = fields[2]
	}
	return entry, true
}

func flattenMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	return strings.TrimSpace(msg)
}
