package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/audio"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/config"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/cryptobox"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/domain"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/engine"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/eventlog"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/httpapi"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/metrics"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/notify"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/ports"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/samples"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/usecase"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/version"
)

// subscriberBuffer sizes the per-consumer detection channels. Detections
// arrive at human speech cadence, so a small buffer absorbs any consumer
// hiccup without dropping.
const subscriberBuffer = 16

// Services is the assembled runtime graph.
type Services struct {
	Config       config.Config
	Supervisor   *usecase.DetectionSupervisor
	Orchestrator *usecase.ActionOrchestrator
	Server       *httpapi.Server
	Hub          *httpapi.Hub
	EventLog     *eventlog.FileLog
	Metrics      *metrics.Metrics

	log        *logrus.Entry
	cancelSubs []func()
	consumers  sync.WaitGroup
}

// NewLogger builds the service logger from config.
func NewLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// ListenerDefaults maps engine configuration to the listener config used
// when detection starts without explicit overrides.
func ListenerDefaults(cfg config.Config) domain.ListenerConfig {
	return domain.ListenerConfig{
		KeyPhrase:   cfg.Engine.KeyPhrase,
		Sensitivity: cfg.Engine.Sensitivity,
		Module:      cfg.Engine.Module,
		SampleRate:  cfg.Engine.SampleRate,
	}
}

// Build wires all backend dependencies for the current configuration.
// The returned Services owns two supervisor subscriptions: one feeds the
// action orchestrator, the other keeps the durable detection record.
func Build(cfg config.Config, logger *logrus.Logger) (*Services, error) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	box, err := cryptobox.New(cfg.Crypto.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("init encryption: %w", err)
	}

	fileLog, err := eventlog.Open(cfg.Data.EventLogPath)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	hub := httpapi.NewHub(logger, m)

	supervisor := usecase.NewDetectionSupervisor(
		engine.NewRunner(cfg.Engine.Command, cfg.Engine.StopGrace),
		hub,
		logger,
		m,
		usecase.SupervisorConfig{ReadyTimeout: cfg.Engine.ReadyTimeout},
	)

	recorder := audio.NewWAVRecorder(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		ports.AudioConfig{
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
		},
		cfg.Data.RecordingsDir,
		logger,
	)

	notifier := notify.NewMulti(
		notify.NewTwilioSender(cfg.Notify.TwilioSID, cfg.Notify.TwilioToken, cfg.Notify.TwilioFrom),
		notify.NewSMTPSender(cfg.Notify.SMTPServer, cfg.Notify.SMTPPort, cfg.Notify.SMTPUsername, cfg.Notify.SMTPPassword),
		cfg.Notify.RequestTimeout,
		logger,
	)

	orchestrator, err := usecase.NewActionOrchestrator(
		recorder,
		box,
		notifier,
		fileLog,
		hub,
		logger,
		m,
		actionConfig(cfg),
	)
	if err != nil {
		_ = fileLog.Close()
		return nil, err
	}

	svc := &Services{
		Config:       cfg,
		Supervisor:   supervisor,
		Orchestrator: orchestrator,
		Hub:          hub,
		EventLog:     fileLog,
		Metrics:      m,
		log:          logger.WithField("component", "bootstrap"),
	}

	actionCh, cancelActions := supervisor.Subscribe(subscriberBuffer)
	logCh, cancelLog := supervisor.Subscribe(subscriberBuffer)
	svc.cancelSubs = []func(){cancelActions, cancelLog}

	svc.consumers.Add(2)
	go func() {
		defer svc.consumers.Done()
		orchestrator.Consume(actionCh)
	}()
	go func() {
		defer svc.consumers.Done()
		svc.recordDetections(logCh)
	}()

	svc.Server = httpapi.NewServer(cfg.HTTP.Addr, httpapi.Deps{
		Detection:       supervisor,
		Actions:         orchestrator,
		EventLog:        fileLog,
		Samples:         samples.NewStore(cfg.Data.SamplesDir),
		Hub:             hub,
		Metrics:         m,
		Gatherer:        registry,
		DefaultListener: ListenerDefaults(cfg),
		EngineCommand:   cfg.Engine.Command,
		FFMPEGCommand:   cfg.Audio.RecorderCommand,
		RecordingsDir:   cfg.Data.RecordingsDir,
		Version:         version.String(),
	}, logger, cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)

	return svc, nil
}

// Close stops the engine, detaches the detection consumers and closes the
// durable log. Safe to call once after the HTTP server has shut down.
func (s *Services) Close(ctx context.Context) error {
	err := s.Supervisor.Stop(ctx)
	for _, cancel := range s.cancelSubs {
		cancel()
	}
	s.consumers.Wait()
	if logErr := s.EventLog.Close(); logErr != nil && err == nil {
		err = logErr
	}
	return err
}

// recordDetections appends one event-log entry per detection so the
// history survives restarts even when no action run follows.
func (s *Services) recordDetections(events <-chan domain.DetectionEvent) {
	for ev := range events {
		entry := domain.Entry{
			At:      ev.At,
			Kind:    domain.EntryDetection,
			Message: fmt.Sprintf("wake phrase heard confidence=%.2f", ev.Confidence),
		}
		if err := s.EventLog.Append(entry); err != nil {
			s.log.WithError(err).Error("failed to append detection entry")
		}
	}
}

func actionConfig(cfg config.Config) domain.ActionConfig {
	contacts := make([]domain.Contact, 0, len(cfg.Action.ContactPhones)+len(cfg.Action.ContactEmails))
	for _, phone := range cfg.Action.ContactPhones {
		contacts = append(contacts, domain.Contact{Phone: phone})
	}
	for _, email := range cfg.Action.ContactEmails {
		contacts = append(contacts, domain.Contact{Email: email})
	}
	return domain.ActionConfig{
		RecordDuration: cfg.Action.RecordDuration,
		Encrypt:        cfg.Action.Encrypt,
		KeepPlaintext:  cfg.Action.KeepPlaintext,
		GracePeriod:    cfg.Action.GracePeriod,
		Cooldown:       cfg.Action.Cooldown,
		Contacts:       contacts,
		RecordingsDir:  cfg.Data.RecordingsDir,
	}
}
