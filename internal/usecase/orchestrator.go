package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/domain"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/metrics"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/ports"
)

// recordSlack pads the recording context beyond the clip duration to cover
// capture process spin-up and file writes.
const recordSlack = 15 * time.Second

// ActionOrchestrator serializes emergency action runs. At most one run is
// pending or active at any time; repeat detections inside the cooldown
// window are suppressed and logged.
type ActionOrchestrator struct {
	recorder ports.Recorder
	enc      ports.Encryptor
	notifier ports.Notifier
	eventLog ports.EventLog
	events   ports.EventSink
	log      *logrus.Entry
	metrics  *metrics.Metrics

	now func() time.Time

	mu           sync.Mutex
	cfg          domain.ActionConfig
	pending      *pendingRun
	runActive    bool
	lastRunStart time.Time
	anchored     bool
	lastRun      *domain.ActionRun
}

type pendingRun struct {
	run   domain.ActionRun
	timer *time.Timer
}

func NewActionOrchestrator(
	recorder ports.Recorder,
	enc ports.Encryptor,
	notifier ports.Notifier,
	eventLog ports.EventLog,
	events ports.EventSink,
	log *logrus.Logger,
	m *metrics.Metrics,
	cfg domain.ActionConfig,
) (*ActionOrchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ActionOrchestrator{
		recorder: recorder,
		enc:      enc,
		notifier: notifier,
		eventLog: eventLog,
		events:   events,
		log:      log.WithField("component", "orchestrator"),
		metrics:  m,
		now:      time.Now,
		cfg:      cfg,
	}, nil
}

// Configure swaps the action configuration for subsequent runs.
func (o *ActionOrchestrator) Configure(cfg domain.ActionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()
	o.log.WithFields(logrus.Fields{
		"record_duration": cfg.RecordDuration.String(),
		"cooldown":        cfg.Cooldown.String(),
		"grace":           cfg.GracePeriod.String(),
		"contacts":        len(cfg.Contacts),
	}).Info("action config updated")
	return nil
}

// Config returns a copy of the current action configuration.
func (o *ActionOrchestrator) Config() domain.ActionConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	cfg := o.cfg
	cfg.Contacts = append([]domain.Contact(nil), o.cfg.Contacts...)
	return cfg
}

// OnDetection is the sole entry point for engine detections. It never
// blocks; eligible detections start (or schedule) a run on a fresh
// goroutine, ineligible ones are logged with their suppression reason.
func (o *ActionOrchestrator) OnDetection(ev domain.DetectionEvent) {
	o.mu.Lock()
	reason, wait, ok := o.eligibleLocked()
	if !ok {
		o.mu.Unlock()
		o.suppress(ev, reason, wait)
		return
	}

	run := newRun(domain.TriggerDetection)
	if grace := o.cfg.GracePeriod; grace > 0 {
		o.schedulePendingLocked(run)
		o.mu.Unlock()
		o.events.RunStateChanged(run)
		o.log.WithFields(logrus.Fields{
			"run_id": run.ID,
			"grace":  grace.String(),
		}).Warn("safety keyword detected, action pending")
		return
	}

	o.beginLocked(&run)
	o.mu.Unlock()
	o.events.RunStateChanged(run)
	go o.execute(run)
}

// TriggerManual starts a run on operator request, bypassing the grace
// period. Under cooldown it returns a CooldownError carrying the remaining
// wait.
func (o *ActionOrchestrator) TriggerManual(ctx context.Context) (domain.ActionRun, error) {
	o.mu.Lock()
	reason, wait, ok := o.eligibleLocked()
	if !ok {
		o.mu.Unlock()
		switch reason {
		case domain.SuppressCooldown:
			return domain.ActionRun{}, &domain.CooldownError{Remaining: wait}
		case domain.SuppressGracePending:
			return domain.ActionRun{}, domain.ErrRunPending
		default:
			return domain.ActionRun{}, domain.ErrRunActive
		}
	}

	run := newRun(domain.TriggerOperator)
	o.beginLocked(&run)
	o.mu.Unlock()

	o.metrics.DetectionsTotal.WithLabelValues("manual").Inc()
	o.events.RunStateChanged(run)
	o.log.WithField("run_id", run.ID).Warn("manual alert triggered")
	go o.execute(run)
	return run, nil
}

// CancelPending aborts a run still inside its grace window.
func (o *ActionOrchestrator) CancelPending() error {
	o.mu.Lock()
	p := o.pending
	if p == nil {
		o.mu.Unlock()
		return domain.ErrNoPendingRun
	}
	o.pending = nil
	p.timer.Stop()

	run := p.run
	run.FinishedAt = o.now()
	run.Outcome = domain.RunOutcomeCancelled
	snap := run
	o.lastRun = &snap
	o.mu.Unlock()

	o.metrics.RunsTotal.WithLabelValues(string(domain.RunOutcomeCancelled)).Inc()
	o.appendEntry(domain.EntryCancelled, fmt.Sprintf("run %s cancelled during grace period", run.ID))
	o.events.RunStateChanged(run)
	o.log.WithField("run_id", run.ID).Info("pending action cancelled")
	return nil
}

// Consume feeds detections from a supervisor subscription until ch closes.
func (o *ActionOrchestrator) Consume(ch <-chan domain.DetectionEvent) {
	for ev := range ch {
		o.OnDetection(ev)
	}
}

// Pending returns the run waiting out its grace period, if any.
func (o *ActionOrchestrator) Pending() (domain.ActionRun, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return domain.ActionRun{}, false
	}
	return o.pending.run, true
}

// LastRun returns the most recently finished or started run.
func (o *ActionOrchestrator) LastRun() (domain.ActionRun, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastRun == nil {
		return domain.ActionRun{}, false
	}
	return *o.lastRun, true
}

// CooldownRemaining reports how long new triggers stay suppressed.
func (o *ActionOrchestrator) CooldownRemaining() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.anchored {
		return 0
	}
	remaining := o.cfg.Cooldown - o.now().Sub(o.lastRunStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// eligibleLocked applies the exclusivity and cooldown rules. The cooldown
// window is [runStart, runStart+cooldown); an event at the exact boundary
// is eligible.
func (o *ActionOrchestrator) eligibleLocked() (domain.SuppressReason, time.Duration, bool) {
	if o.runActive {
		return domain.SuppressRunActive, 0, false
	}
	if o.pending != nil {
		return domain.SuppressGracePending, 0, false
	}
	if o.anchored {
		elapsed := o.now().Sub(o.lastRunStart)
		if elapsed < o.cfg.Cooldown {
			return domain.SuppressCooldown, o.cfg.Cooldown - elapsed, false
		}
	}
	return "", 0, true
}

func newRun(source domain.TriggerSource) domain.ActionRun {
	return domain.ActionRun{
		ID:          uuid.NewString(),
		TriggeredBy: source,
		Outcome:     domain.RunOutcomePending,
	}
}

func (o *ActionOrchestrator) schedulePendingLocked(run domain.ActionRun) {
	p := &pendingRun{run: run}
	p.timer = time.AfterFunc(o.cfg.GracePeriod, func() { o.graceExpired(p) })
	o.pending = p
	snap := run
	o.lastRun = &snap
}

// graceExpired promotes a pending run unless CancelPending won the race.
func (o *ActionOrchestrator) graceExpired(p *pendingRun) {
	o.mu.Lock()
	if o.pending != p {
		o.mu.Unlock()
		return
	}
	o.pending = nil
	run := p.run
	o.beginLocked(&run)
	o.mu.Unlock()

	o.events.RunStateChanged(run)
	go o.execute(run)
}

// beginLocked marks the run active and anchors the cooldown window at its
// start, regardless of eventual outcome.
func (o *ActionOrchestrator) beginLocked(run *domain.ActionRun) {
	run.StartedAt = o.now()
	run.Outcome = domain.RunOutcomeRunning
	o.runActive = true
	o.lastRunStart = run.StartedAt
	o.anchored = true
	snap := *run
	o.lastRun = &snap
}

// execute walks the Record -> Encrypt -> Notify -> Log sequence on its own
// goroutine. Notification and log failures degrade the outcome without
// aborting later steps; record and encrypt failures fail the run.
func (o *ActionOrchestrator) execute(run domain.ActionRun) {
	wallStart := time.Now()
	cfg := o.Config()
	logger := o.log.WithField("run_id", run.ID)

	var failure error
	var notifyFailed bool

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RecordDuration+recordSlack)
	recording, err := o.recorder.Record(ctx, cfg.RecordDuration)
	cancel()
	if err != nil {
		failure = fmt.Errorf("record: %w", err)
		logger.WithError(err).Error("recording failed")
	} else {
		run.RecordingPath = recording.Path
		logger.WithFields(logrus.Fields{
			"path":  recording.Path,
			"bytes": recording.Size,
		}).Info("recording captured")

		if cfg.Encrypt {
			encPath, err := o.enc.EncryptFile(recording.Path, cfg.KeepPlaintext)
			if err != nil {
				failure = fmt.Errorf("encrypt: %w", err)
				logger.WithError(err).Error("encryption failed")
			} else {
				run.EncryptedPath = encPath
			}
		}
	}

	// Notifications go out even when recording failed; contacts still need
	// to know the keyword fired.
	if len(cfg.Contacts) > 0 {
		alert := domain.Alert{RunID: run.ID, At: run.StartedAt, Source: run.TriggeredBy}
		if err := o.notifier.Notify(context.Background(), cfg.Contacts, alert); err != nil {
			notifyFailed = true
			o.metrics.NotifyFailures.Inc()
			logger.WithError(err).Warn("notification delivery incomplete")
		}
	}

	run.FinishedAt = o.now()
	run.Outcome = outcomeFor(failure, notifyFailed, false)
	if failure != nil {
		run.Err = failure.Error()
	}

	if err := o.eventLog.Append(runEntry(run)); err != nil {
		logger.WithError(err).Error("event log append failed")
		run.Outcome = outcomeFor(failure, notifyFailed, true)
	}

	o.mu.Lock()
	o.runActive = false
	snap := run
	o.lastRun = &snap
	o.mu.Unlock()

	o.metrics.RunsTotal.WithLabelValues(string(run.Outcome)).Inc()
	o.metrics.RunDuration.Observe(time.Since(wallStart).Seconds())
	o.events.RunStateChanged(run)
	logger.WithFields(logrus.Fields{
		"outcome":   run.Outcome,
		"recording": run.RecordingPath,
		"encrypted": run.EncryptedPath,
	}).Info("action run finished")
}

func outcomeFor(failure error, notifyFailed, logFailed bool) domain.RunOutcome {
	switch {
	case failure != nil:
		return domain.RunOutcomeFailed
	case notifyFailed || logFailed:
		return domain.RunOutcomePartiallyFailed
	default:
		return domain.RunOutcomeCompleted
	}
}

func runEntry(run domain.ActionRun) domain.Entry {
	msg := fmt.Sprintf("run %s trigger=%s outcome=%s", run.ID, run.TriggeredBy, run.Outcome)
	if run.RecordingPath != "" {
		msg += fmt.Sprintf(" recording=%q", run.RecordingPath)
	}
	if run.EncryptedPath != "" {
		msg += fmt.Sprintf(" encrypted=%q", run.EncryptedPath)
	}
	if run.Err != "" {
		msg += fmt.Sprintf(" error=%q", run.Err)
	}
	return domain.Entry{At: run.FinishedAt, Kind: domain.EntryRun, Message: msg}
}

func (o *ActionOrchestrator) suppress(ev domain.DetectionEvent, reason domain.SuppressReason, wait time.Duration) {
	o.metrics.SuppressedTotal.WithLabelValues(string(reason)).Inc()
	o.events.DetectionSuppressed(ev, reason)

	msg := fmt.Sprintf("detection suppressed reason=%s", reason)
	if wait > 0 {
		msg += fmt.Sprintf(" retry_in=%s", wait.Round(time.Millisecond))
	}
	o.appendEntry(domain.EntrySuppressed, msg)
	o.log.WithFields(logrus.Fields{
		"reason":  reason,
		"retryIn": wait.String(),
	}).Info("detection suppressed")
}

func (o *ActionOrchestrator) appendEntry(kind domain.EntryKind, msg string) {
	entry := domain.Entry{At: o.now(), Kind: kind, Message: msg}
	if err := o.eventLog.Append(entry); err != nil {
		o.log.WithError(err).Error("event log append failed")
	}
}
