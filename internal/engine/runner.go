package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/domain"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/ports"
)

// Runner launches the external wake-word engine as a child process and
// streams its stdout line by line. It never restarts or interprets output.
type Runner struct {
	command   string
	stopGrace time.Duration
}

func NewRunner(command string, stopGrace time.Duration) *Runner {
	if command == "" {
		command = "safeword-engine"
	}
	if stopGrace <= 0 {
		stopGrace = 5 * time.Second
	}
	return &Runner{command: command, stopGrace: stopGrace}
}

func (r *Runner) Spawn(ctx context.Context, cfg domain.ListenerConfig) (ports.EngineProcess, error) {
	args := []string{
		"--module", cfg.Module,
		"--keyword", cfg.KeyPhrase,
		"--sensitivity", strconv.FormatFloat(cfg.Sensitivity, 'f', 2, 64),
		"--rate", strconv.Itoa(cfg.SampleRate),
	}

	cmd := exec.CommandContext(ctx, r.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create engine stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", r.command, err)
	}

	proc := &engineProcess{
		process: cmd.Process,
		pid:     cmd.Process.Pid,
		grace:   r.stopGrace,
		stderr:  &stderr,
		lines:   make(chan string, 16),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
		for scanner.Scan() {
			select {
			case proc.lines <- scanner.Text():
			case <-proc.quit:
				// Stop was requested; drain to EOF so Wait can reap.
				for scanner.Scan() {
				}
			}
		}
		close(proc.lines)

		err := cmd.Wait()
		if err != nil && stderr.Len() > 0 {
			err = fmt.Errorf("%w: %s", err, string(bytes.TrimSpace(stderr.Bytes())))
		}
		proc.exitErr = err
		close(proc.done)
	}()

	return proc, nil
}

type engineProcess struct {
	process *os.Process
	pid     int
	grace   time.Duration
	stderr  *bytes.Buffer

	lines chan string
	quit  chan struct{}
	done  chan struct{}

	// exitErr is written once before done is closed.
	exitErr error

	stopOnce sync.Once
	stopErr  error
}

func (p *engineProcess) Lines() <-chan string { return p.lines }

func (p *engineProcess) Done() <-chan struct{} { return p.done }

func (p *engineProcess) PID() int { return p.pid }

// Err reports the exit error once the process has finished.
func (p *engineProcess) Err() error {
	select {
	case <-p.done:
		return p.exitErr
	default:
		return nil
	}
}

// Stop asks the engine to terminate, escalating to a kill after the grace
// window. Expected termination statuses are not reported as errors.
func (p *engineProcess) Stop() error {
	p.stopOnce.Do(func() {
		close(p.quit)
		_ = p.process.Signal(os.Interrupt)

		select {
		case <-p.done:
		case <-time.After(p.grace):
			_ = p.process.Kill()
			<-p.done
		}

		p.stopErr = normalizeExitErr(p.exitErr)
	})

	return p.stopErr
}

func normalizeExitErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
