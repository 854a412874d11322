package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by the supervisor and the orchestrator. Callers
// match them with errors.Is after any amount of wrapping.
var (
	ErrAlreadyRunning    = errors.New("listener already running")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrEngineUnavailable = errors.New("wake-word engine unavailable")
	ErrEngineTimeout     = errors.New("wake-word engine took too long to start")
	ErrAudioUnavailable  = errors.New("audio capture unavailable")
	ErrRunActive         = errors.New("action run already in progress")
	ErrRunPending        = errors.New("action run pending in grace period")
	ErrNoPendingRun      = errors.New("no pending action run")
)

// CooldownError reports a trigger rejected inside the refractory window.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active, retry in %s", e.Remaining.Round(time.Millisecond))
}

// AsCooldown extracts a CooldownError from err, if present.
func AsCooldown(err error) (*CooldownError, bool) {
	var ce *CooldownError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
