package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/domain"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/ports"
)

const bitsPerSample = 16

// WAVRecorder captures a fixed window of microphone audio and stores it
// as a WAV file named after the moment the recording started.
type WAVRecorder struct {
	capture ports.AudioCapture
	cfg     ports.AudioConfig
	dir     string
	log     *logrus.Entry
	now     func() time.Time
}

func NewWAVRecorder(capture ports.AudioCapture, cfg ports.AudioConfig, dir string, logger *logrus.Logger) *WAVRecorder {
	if dir == "" {
		dir = "recordings"
	}
	return &WAVRecorder{
		capture: capture,
		cfg:     cfg,
		dir:     dir,
		log:     logger.WithField("component", "recorder"),
		now:     time.Now,
	}
}

func (r *WAVRecorder) Record(ctx context.Context, duration time.Duration) (domain.Recording, error) {
	if duration <= 0 {
		return domain.Recording{}, fmt.Errorf("%w: record duration must be positive", domain.ErrAudioUnavailable)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return domain.Recording{}, fmt.Errorf("%w: create recordings dir: %v", domain.ErrAudioUnavailable, err)
	}

	startedAt := r.now()

	session, err := r.capture.Start(ctx, r.cfg)
	if err != nil {
		return domain.Recording{}, err
	}

	want := pcmByteCount(duration, r.cfg.SampleRate, r.cfg.Channels)
	pcm := make([]byte, want)
	n, readErr := io.ReadFull(session, pcm)
	if stopErr := session.Stop(); stopErr != nil {
		r.log.WithError(stopErr).Warn("capture session stop reported error")
	}

	if n == 0 {
		if readErr == nil {
			readErr = io.ErrUnexpectedEOF
		}
		return domain.Recording{}, fmt.Errorf("%w: no audio captured: %v", domain.ErrAudioUnavailable, readErr)
	}
	if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
		return domain.Recording{}, fmt.Errorf("%w: capture read failed: %v", domain.ErrAudioUnavailable, readErr)
	}
	if n < want {
		r.log.WithFields(logrus.Fields{
			"want_bytes": want,
			"got_bytes":  n,
		}).Warn("capture ended early, keeping partial recording")
	}

	wav := pcmToWAV(pcm[:n], r.cfg.SampleRate, r.cfg.Channels, bitsPerSample)

	path := r.artifactPath(startedAt)
	if err := os.WriteFile(path, wav, 0o600); err != nil {
		return domain.Recording{}, fmt.Errorf("%w: write recording: %v", domain.ErrAudioUnavailable, err)
	}

	return domain.Recording{
		Path:     path,
		Size:     int64(len(wav)),
		Duration: pcmDuration(n, r.cfg.SampleRate, r.cfg.Channels),
	}, nil
}

// artifactPath picks alert_<timestamp>.wav, falling back to a suffixed
// name when two recordings land in the same second.
func (r *WAVRecorder) artifactPath(at time.Time) string {
	stamp := at.Format("20060102_150405")
	path := filepath.Join(r.dir, fmt.Sprintf("alert_%s.wav", stamp))
	if _, err := os.Stat(path); err == nil {
		path = filepath.Join(r.dir, fmt.Sprintf("alert_%s_%s.wav", stamp, uuid.NewString()[:8]))
	}
	return path
}

func pcmByteCount(duration time.Duration, sampleRate, channels int) int {
	samples := int(duration.Seconds() * float64(sampleRate))
	return samples * channels * (bitsPerSample / 8)
}

func pcmDuration(byteCount, sampleRate, channels int) time.Duration {
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	if byteRate <= 0 {
		return 0
	}
	return time.Duration(float64(byteCount) / float64(byteRate) * float64(time.Second))
}
