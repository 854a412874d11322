package ports

import (
	"context"
	"io"
	"time"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session delivering raw PCM.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// EngineProcess is one live wake-word engine process. Lines delivers raw
// output lines and is closed when the process exits; Err is valid once
// Done is closed.
type EngineProcess interface {
	Lines() <-chan string
	Done() <-chan struct{}
	Err() error
	PID() int
	Stop() error
}

// EngineLauncher spawns wake-word engine processes. It never restarts or
// interprets them.
type EngineLauncher interface {
	Spawn(ctx context.Context, cfg domain.ListenerConfig) (EngineProcess, error)
}

// Recorder captures a fixed-duration clip and persists it as a WAV file.
type Recorder interface {
	Record(ctx context.Context, duration time.Duration) (domain.Recording, error)
}

// Encryptor protects recordings at rest. EncryptFile writes the encrypted
// sibling of path and returns its location; the plaintext is removed unless
// keepPlaintext is set.
type Encryptor interface {
	EncryptFile(path string, keepPlaintext bool) (string, error)
	DecryptFile(path, outPath string) (string, error)
}

// Notifier delivers emergency alerts to contacts, best effort. The returned
// error aggregates per-contact failures.
type Notifier interface {
	Notify(ctx context.Context, contacts []domain.Contact, alert domain.Alert) error
}

// EventLog is the append-only persistent record of detections and runs.
type EventLog interface {
	Append(entry domain.Entry) error
	Recent(n int) ([]domain.Entry, error)
}

// EventSink emits live state and events to attached frontends.
type EventSink interface {
	ListenerStateChanged(state domain.ListenerState, detail string)
	DetectionObserved(ev domain.DetectionEvent)
	DetectionSuppressed(ev domain.DetectionEvent, reason domain.SuppressReason)
	RunStateChanged(run domain.ActionRun)
}
