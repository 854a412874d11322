package domain

import (
	"fmt"
	"strings"
	"time"
)

// ListenerState models the wake-word listener lifecycle.
type ListenerState string

const (
	ListenerStateIdle      ListenerState = "idle"
	ListenerStateStarting  ListenerState = "starting"
	ListenerStateListening ListenerState = "listening"
	ListenerStateStopping  ListenerState = "stopping"
	ListenerStateCrashed   ListenerState = "crashed"
)

// ListenerConfig describes one launch of the external wake-word engine.
type ListenerConfig struct {
	KeyPhrase   string  `json:"key_phrase"`
	Sensitivity float64 `json:"sensitivity"`
	Module      string  `json:"module"`
	SampleRate  int     `json:"sample_rate"`
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c ListenerConfig) Validate() error {
	if strings.TrimSpace(c.KeyPhrase) == "" {
		return fmt.Errorf("%w: key phrase must not be empty", ErrInvalidConfig)
	}
	if c.Sensitivity < 0 || c.Sensitivity > 1 {
		return fmt.Errorf("%w: sensitivity %.2f outside [0, 1]", ErrInvalidConfig, c.Sensitivity)
	}
	if strings.TrimSpace(c.Module) == "" {
		return fmt.Errorf("%w: engine module must not be empty", ErrInvalidConfig)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidConfig)
	}
	return nil
}

// ListenerStatus summarizes the supervisor runtime.
type ListenerStatus struct {
	State        ListenerState `json:"state"`
	Listening    bool          `json:"listening"`
	KeyPhrase    string        `json:"key_phrase,omitempty"`
	Module       string        `json:"module,omitempty"`
	Sensitivity  float64       `json:"sensitivity,omitempty"`
	PID          int           `json:"pid,omitempty"`
	ProcessAlive bool          `json:"process_alive"`
	Message      string        `json:"message,omitempty"`
}

// DetectionEvent is one wake-phrase hit reported by the engine.
// Confidence is zero when the engine did not report a score.
type DetectionEvent struct {
	At         time.Time `json:"at"`
	Confidence float64   `json:"confidence,omitempty"`
	Line       string    `json:"line,omitempty"`
	Manual     bool      `json:"manual,omitempty"`
}

// TriggerSource identifies what started an action run.
type TriggerSource string

const (
	TriggerDetection TriggerSource = "detection"
	TriggerOperator  TriggerSource = "manual"
)

// RunOutcome classifies an action run. Completed, PartiallyFailed, Failed
// and Cancelled are terminal; Pending and Running are transient snapshots.
type RunOutcome string

const (
	RunOutcomePending         RunOutcome = "pending"
	RunOutcomeRunning         RunOutcome = "running"
	RunOutcomeCompleted       RunOutcome = "completed"
	RunOutcomePartiallyFailed RunOutcome = "partially_failed"
	RunOutcomeFailed          RunOutcome = "failed"
	RunOutcomeCancelled       RunOutcome = "cancelled"
)

// Terminal reports whether the outcome is final.
func (o RunOutcome) Terminal() bool {
	switch o {
	case RunOutcomeCompleted, RunOutcomePartiallyFailed, RunOutcomeFailed, RunOutcomeCancelled:
		return true
	}
	return false
}

// SuppressReason explains why a detection did not start a run.
type SuppressReason string

const (
	SuppressCooldown     SuppressReason = "cooldown"
	SuppressGracePending SuppressReason = "grace-pending"
	SuppressRunActive    SuppressReason = "run-active"
)

// Contact is one emergency notification target. Either address may be empty.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// ActionConfig governs the emergency action sequence.
type ActionConfig struct {
	RecordDuration time.Duration
	Encrypt        bool
	KeepPlaintext  bool
	GracePeriod    time.Duration
	Cooldown       time.Duration
	Contacts       []Contact
	RecordingsDir  string
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c ActionConfig) Validate() error {
	if c.RecordDuration <= 0 {
		return fmt.Errorf("%w: record duration must be positive", ErrInvalidConfig)
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("%w: grace period must not be negative", ErrInvalidConfig)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("%w: cooldown must not be negative", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.RecordingsDir) == "" {
		return fmt.Errorf("%w: recordings directory must not be empty", ErrInvalidConfig)
	}
	return nil
}

// ActionRun records one emergency action sequence.
type ActionRun struct {
	ID            string        `json:"id"`
	TriggeredBy   TriggerSource `json:"triggered_by"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	RecordingPath string        `json:"recording_path,omitempty"`
	EncryptedPath string        `json:"encrypted_path,omitempty"`
	Outcome       RunOutcome    `json:"outcome"`
	Err           string        `json:"error,omitempty"`
}

// Recording describes one captured audio artifact.
type Recording struct {
	Path     string
	Size     int64
	Duration time.Duration
}

// Alert carries the context notifiers need to compose a message.
type Alert struct {
	RunID  string
	At     time.Time
	Source TriggerSource
}

// EntryKind labels event-log lines.
type EntryKind string

const (
	EntryDetection  EntryKind = "DETECTION"
	EntrySuppressed EntryKind = "SUPPRESSED"
	EntryRun        EntryKind = "RUN"
	EntryCancelled  EntryKind = "CANCELLED"
)

// Entry is one line of the append-only event log.
type Entry struct {
	At      time.Time `json:"at"`
	Kind    EntryKind `json:"kind"`
	Message string    `json:"message"`
}
