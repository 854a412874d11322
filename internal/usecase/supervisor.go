package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/domain"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/metrics"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/ports"
)

// SupervisorConfig controls engine supervision behavior.
type SupervisorConfig struct {
	ReadyTimeout time.Duration
}

// DetectionSupervisor owns the wake-word engine process lifecycle and fans
// typed detections out to subscribers.
type DetectionSupervisor struct {
	launcher ports.EngineLauncher
	events   ports.EventSink
	log      *logrus.Entry
	metrics  *metrics.Metrics
	cfg      SupervisorConfig

	mu      sync.Mutex
	state   domain.ListenerState
	current *listenerSession
	lastCfg domain.ListenerConfig
	lastErr string
	subs    map[int]chan domain.DetectionEvent
	nextSub int
}

type listenerSession struct {
	proc   ports.EngineProcess
	cancel context.CancelFunc

	// guarded by the supervisor mutex
	stopping      bool
	readerStarted bool

	readerDone chan struct{}
}

func NewDetectionSupervisor(
	launcher ports.EngineLauncher,
	events ports.EventSink,
	log *logrus.Logger,
	m *metrics.Metrics,
	cfg SupervisorConfig,
) *DetectionSupervisor {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 10 * time.Second
	}
	return &DetectionSupervisor{
		launcher: launcher,
		events:   events,
		log:      log.WithField("component", "supervisor"),
		metrics:  m,
		cfg:      cfg,
		state:    domain.ListenerStateIdle,
		subs:     make(map[int]chan domain.DetectionEvent),
	}
}

// Start validates cfg, spawns the engine and blocks until it is ready,
// crashed or timed out. Legal only from Idle and Crashed.
func (s *DetectionSupervisor) Start(ctx context.Context, cfg domain.ListenerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	switch s.state {
	case domain.ListenerStateIdle, domain.ListenerStateCrashed:
	default:
		s.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	s.state = domain.ListenerStateStarting
	s.lastCfg = cfg
	s.lastErr = ""

	runCtx, cancel := context.WithCancel(context.Background())
	proc, err := s.launcher.Spawn(runCtx, cfg)
	if err != nil {
		s.state = domain.ListenerStateIdle
		s.mu.Unlock()
		cancel()
		s.log.WithError(err).Error("failed to spawn wake-word engine")
		s.events.ListenerStateChanged(domain.ListenerStateIdle, "engine spawn failed")
		return fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, err)
	}

	session := &listenerSession{
		proc:       proc,
		cancel:     cancel,
		readerDone: make(chan struct{}),
	}
	s.current = session
	s.mu.Unlock()

	s.events.ListenerStateChanged(domain.ListenerStateStarting, "launching engine")
	s.log.WithFields(logrus.Fields{
		"module":      cfg.Module,
		"sensitivity": cfg.Sensitivity,
		"pid":         proc.PID(),
	}).Info("wake-word engine starting")

	return s.awaitReady(ctx, session)
}

// awaitReady blocks until the engine emits its first output line. The first
// line counts as readiness and is still interpreted, so a detection on line
// one is not lost.
func (s *DetectionSupervisor) awaitReady(ctx context.Context, session *listenerSession) error {
	timer := time.NewTimer(s.cfg.ReadyTimeout)
	defer timer.Stop()

	select {
	case line, ok := <-session.proc.Lines():
		if !ok {
			<-session.proc.Done()
			return s.startupFailed(session, fmt.Errorf("%w: engine exited during startup: %v",
				domain.ErrEngineUnavailable, session.proc.Err()))
		}
		return s.becomeListening(session, line)

	case <-timer.C:
		_ = session.proc.Stop()
		return s.startupFailed(session, fmt.Errorf("%w after %s",
			domain.ErrEngineTimeout, s.cfg.ReadyTimeout))

	case <-ctx.Done():
		_ = session.proc.Stop()
		return s.startupAborted(session, fmt.Errorf("startup canceled: %w", ctx.Err()))
	}
}

func (s *DetectionSupervisor) becomeListening(session *listenerSession, firstLine string) error {
	s.mu.Lock()
	if session.stopping {
		s.mu.Unlock()
		return fmt.Errorf("%w: stopped during startup", domain.ErrEngineUnavailable)
	}
	s.state = domain.ListenerStateListening
	session.readerStarted = true
	s.mu.Unlock()

	s.metrics.EngineStarts.Inc()
	s.metrics.ListenerState.Set(1)
	s.events.ListenerStateChanged(domain.ListenerStateListening, "engine ready")
	s.log.Info("wake-word engine ready")

	go s.readLines(session, firstLine)
	return nil
}

// startupFailed moves a failed start to Crashed unless a concurrent Stop
// already owns the transition.
func (s *DetectionSupervisor) startupFailed(session *listenerSession, cause error) error {
	s.mu.Lock()
	if session.stopping {
		s.mu.Unlock()
		return fmt.Errorf("%w: stopped during startup", domain.ErrEngineUnavailable)
	}
	s.state = domain.ListenerStateCrashed
	s.lastErr = cause.Error()
	if s.current == session {
		s.current = nil
	}
	s.mu.Unlock()

	session.cancel()
	s.metrics.EngineCrashes.Inc()
	s.metrics.ListenerState.Set(0)
	s.events.ListenerStateChanged(domain.ListenerStateCrashed, cause.Error())
	s.log.WithError(cause).Error("wake-word engine failed to start")
	return cause
}

// startupAborted returns to Idle when the caller gave up on the start.
func (s *DetectionSupervisor) startupAborted(session *listenerSession, cause error) error {
	s.mu.Lock()
	if session.stopping {
		s.mu.Unlock()
		return fmt.Errorf("%w: stopped during startup", domain.ErrEngineUnavailable)
	}
	s.state = domain.ListenerStateIdle
	if s.current == session {
		s.current = nil
	}
	s.mu.Unlock()

	session.cancel()
	s.metrics.ListenerState.Set(0)
	s.events.ListenerStateChanged(domain.ListenerStateIdle, "startup canceled")
	return cause
}

// readLines interprets engine output until the process exits. An exit
// without a stop request is a crash.
func (s *DetectionSupervisor) readLines(session *listenerSession, firstLine string) {
	defer close(session.readerDone)

	s.handleLine(firstLine)
	for line := range session.proc.Lines() {
		s.handleLine(line)
	}
	<-session.proc.Done()

	s.mu.Lock()
	if session.stopping || s.current != session {
		s.mu.Unlock()
		return
	}
	exitErr := session.proc.Err()
	s.state = domain.ListenerStateCrashed
	s.lastErr = crashMessage(exitErr)
	s.current = nil
	s.mu.Unlock()

	session.cancel()
	s.metrics.EngineCrashes.Inc()
	s.metrics.ListenerState.Set(0)
	s.events.ListenerStateChanged(domain.ListenerStateCrashed, crashMessage(exitErr))
	if exitErr != nil {
		s.log.WithError(exitErr).Error("wake-word engine exited unexpectedly")
	} else {
		s.log.Error("wake-word engine exited unexpectedly")
	}
}

func crashMessage(exitErr error) string {
	if exitErr == nil {
		return "engine exited unexpectedly"
	}
	return fmt.Sprintf("engine exited unexpectedly: %v", exitErr)
}

func (s *DetectionSupervisor) handleLine(line string) {
	switch classifyLine(line) {
	case lineDetection:
		ev := domain.DetectionEvent{
			At:         time.Now(),
			Confidence: parseConfidence(line),
			Line:       strings.TrimSpace(line),
		}
		s.publish(ev)
	case lineError:
		s.log.WithField("line", line).Warn("engine reported a problem")
	default:
		s.log.WithField("line", line).Debug("engine output")
	}
}

func (s *DetectionSupervisor) publish(ev domain.DetectionEvent) {
	s.metrics.DetectionsTotal.WithLabelValues("engine").Inc()
	s.log.WithField("confidence", ev.Confidence).Info("wake phrase detected")
	s.events.DetectionObserved(ev)

	s.mu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.metrics.EventDrops.Inc()
		}
	}
	s.mu.Unlock()
}

// Subscribe registers a bounded detection channel. Slow subscribers lose
// events rather than stalling the reader. The returned cancel func closes
// the channel; subscriptions outlive engine restarts.
func (s *DetectionSupervisor) Subscribe(buffer int) (<-chan domain.DetectionEvent, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan domain.DetectionEvent, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Stop terminates the engine and always lands in Idle. Stopping an idle or
// crashed listener only clears bookkeeping.
func (s *DetectionSupervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case domain.ListenerStateIdle, domain.ListenerStateStopping:
		s.mu.Unlock()
		return nil
	case domain.ListenerStateCrashed:
		s.state = domain.ListenerStateIdle
		s.lastErr = ""
		s.mu.Unlock()
		s.events.ListenerStateChanged(domain.ListenerStateIdle, "crash cleared")
		return nil
	}

	session := s.current
	session.stopping = true
	readerStarted := session.readerStarted
	s.state = domain.ListenerStateStopping
	s.mu.Unlock()

	s.events.ListenerStateChanged(domain.ListenerStateStopping, "stop requested")
	s.log.Info("stopping wake-word engine")

	stopErr := session.proc.Stop()
	if readerStarted {
		<-session.readerDone
	}
	session.cancel()

	s.mu.Lock()
	if s.current == session {
		s.current = nil
	}
	s.state = domain.ListenerStateIdle
	s.mu.Unlock()

	s.metrics.ListenerState.Set(0)
	s.events.ListenerStateChanged(domain.ListenerStateIdle, "stopped")
	s.log.Info("wake-word engine stopped")
	return stopErr
}

// Status returns a non-blocking snapshot of the listener.
func (s *DetectionSupervisor) Status() domain.ListenerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := domain.ListenerStatus{
		State:     s.state,
		Listening: s.state == domain.ListenerStateListening,
		Message:   s.lastErr,
	}
	if s.state != domain.ListenerStateIdle {
		status.KeyPhrase = s.lastCfg.KeyPhrase
		status.Module = s.lastCfg.Module
		status.Sensitivity = s.lastCfg.Sensitivity
	}
	if s.current != nil {
		status.PID = s.current.proc.PID()
		select {
		case <-s.current.proc.Done():
		default:
			status.ProcessAlive = true
		}
	}
	return status
}
