package samples

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Dataset labels match the directory names the training pipeline expects.
const (
	LabelWakeWord    = "wake-word"
	LabelNotWakeWord = "not-wake-word"
)

// minSampleBytes rejects empty or headerless uploads.
const minSampleBytes = 100

// readyThreshold is the wake-word sample count a custom model needs
// before training is worth attempting.
const readyThreshold = 10

var (
	ErrInvalidLabel   = errors.New("invalid sample label")
	ErrInvalidName    = errors.New("invalid sample filename")
	ErrSampleTooSmall = errors.New("audio sample is too small or empty")
)

// Sample is one stored training clip.
type Sample struct {
	Filename string    `json:"filename"`
	Label    string    `json:"label"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created"`
}

// Stats summarizes the dataset.
type Stats struct {
	WakeWord     int  `json:"wake_word"`
	NotWakeWord  int  `json:"not_wake_word"`
	Total        int  `json:"total"`
	ReadyToTrain bool `json:"ready_to_train"`
}

// Store keeps training samples as WAV files under one directory per
// label.
type Store struct {
	dir string
	now func() time.Time
}

func NewStore(dir string) *Store {
	if dir == "" {
		dir = "data"
	}
	return &Store{dir: dir, now: time.Now}
}

// Save writes one clip into the labelled dataset directory under a
// fresh sample_<timestamp>_<n>.wav name.
func (s *Store) Save(label string, wav []byte) (Sample, error) {
	if label != LabelWakeWord && label != LabelNotWakeWord {
		return Sample{}, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	if len(wav) < minSampleBytes {
		return Sample{}, ErrSampleTooSmall
	}

	targetDir := filepath.Join(s.dir, label)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return Sample{}, fmt.Errorf("create dataset dir: %w", err)
	}

	stamp := s.now().Format("20060102_150405")
	for counter := 0; ; counter++ {
		filename := fmt.Sprintf("sample_%s_%d.wav", stamp, counter)
		path := filepath.Join(targetDir, filename)

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return Sample{}, fmt.Errorf("create sample file: %w", err)
		}
		if _, err := file.Write(wav); err != nil {
			file.Close()
			return Sample{}, fmt.Errorf("write sample: %w", err)
		}
		if err := file.Close(); err != nil {
			return Sample{}, fmt.Errorf("close sample: %w", err)
		}
		return Sample{
			Filename: filename,
			Label:    label,
			Path:     path,
			Size:     int64(len(wav)),
			Created:  s.now(),
		}, nil
	}
}

// Stats counts WAV files per label. Missing directories count as zero.
func (s *Store) Stats() (Stats, error) {
	wake, err := s.countWAVs(LabelWakeWord)
	if err != nil {
		return Stats{}, err
	}
	notWake, err := s.countWAVs(LabelNotWakeWord)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		WakeWord:     wake,
		NotWakeWord:  notWake,
		Total:        wake + notWake,
		ReadyToTrain: wake >= readyThreshold,
	}, nil
}

// List returns every stored sample, newest first.
func (s *Store) List() ([]Sample, error) {
	var all []Sample
	for _, label := range []string{LabelWakeWord, LabelNotWakeWord} {
		labelled, err := s.listLabel(label)
		if err != nil {
			return nil, err
		}
		all = append(all, labelled...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Created.After(all[j].Created) })
	return all, nil
}

// Resolve maps a label and bare filename to a dataset path. Names
// carrying path separators or missing the .wav suffix are rejected so
// callers can hand the result straight to the filesystem.
func (s *Store) Resolve(label, filename string) (string, error) {
	if label != LabelWakeWord && label != LabelNotWakeWord {
		return "", fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	if filename == "" || filename != filepath.Base(filename) || !strings.HasSuffix(filename, ".wav") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}
	path := filepath.Join(s.dir, label, filename)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stat sample: %w", err)
	}
	return path, nil
}

// Delete removes one stored sample.
func (s *Store) Delete(label, filename string) error {
	path, err := s.Resolve(label, filename)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// Clear wipes the whole dataset and reports how many clips went away.
func (s *Store) Clear() (int, error) {
	deleted := 0
	for _, label := range []string{LabelWakeWord, LabelNotWakeWord} {
		dir := filepath.Join(s.dir, label)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return deleted, fmt.Errorf("read dataset dir: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wav") {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				return deleted, fmt.Errorf("remove sample: %w", err)
			}
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) countWAVs(label string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, label))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read dataset dir: %w", err)
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".wav") {
			count++
		}
	}
	return count, nil
}

func (s *Store) listLabel(label string) ([]Sample, error) {
	dir := filepath.Join(s.dir, label)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}

	var out []Sample
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wav") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Sample{
			Filename: entry.Name(),
			Label:    label,
			Path:     filepath.Join(dir, entry.Name()),
			Size:     info.Size(),
			Created:  info.ModTime(),
		})
	}
	return out, nil
}
