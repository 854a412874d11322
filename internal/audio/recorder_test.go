package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/domain"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/ports"
)

const testByteRate = 8000 * 2

func testAudioConfig() ports.AudioConfig {
	return ports.AudioConfig{
		SampleRate:  8000,
		Channels:    1,
		InputFormat: "pulse",
		InputDevice: "default",
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeCapture struct {
	pcm      []byte
	startErr error
	sessions []*fakeCaptureSession
}

func (c *fakeCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	if c.startErr != nil {
		return nil, c.startErr
	}
	session := &fakeCaptureSession{reader: bytes.NewReader(c.pcm)}
	c.sessions = append(c.sessions, session)
	return session, nil
}

type fakeCaptureSession struct {
	reader  *bytes.Reader
	stopped bool
}

func (s *fakeCaptureSession) Read(p []byte) (int, error) { return s.reader.Read(p) }
func (s *fakeCaptureSession) Close() error               { return s.Stop() }

func (s *fakeCaptureSession) Stop() error {
	s.stopped = true
	return nil
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestWAVRecorderRecordWritesArtifact(t *testing.T) {
	t.Parallel()

	pcm := bytes.Repeat([]byte{0xAB}, 160)
	capture := &fakeCapture{pcm: pcm}
	dir := t.TempDir()

	rec := NewWAVRecorder(capture, testAudioConfig(), dir, testLogger())
	rec.now = fixedNow(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	recording, err := rec.Record(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if got, want := filepath.Base(recording.Path), "alert_20240102_030405.wav"; got != want {
		t.Fatalf("unexpected artifact name: %q", got)
	}
	if recording.Size != 44+160 {
		t.Fatalf("unexpected artifact size: %d", recording.Size)
	}
	if recording.Duration != 10*time.Millisecond {
		t.Fatalf("unexpected duration: %s", recording.Duration)
	}

	raw, err := os.ReadFile(recording.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(raw[0:4]) != "RIFF" {
		t.Fatalf("artifact missing RIFF header")
	}
	if !bytes.Equal(raw[44:], pcm) {
		t.Fatalf("artifact payload does not match captured pcm")
	}
	if len(capture.sessions) != 1 || !capture.sessions[0].stopped {
		t.Fatalf("capture session was not stopped")
	}
}

func TestWAVRecorderKeepsPartialCapture(t *testing.T) {
	t.Parallel()

	capture := &fakeCapture{pcm: bytes.Repeat([]byte{1}, 100)}
	rec := NewWAVRecorder(capture, testAudioConfig(), t.TempDir(), testLogger())

	recording, err := rec.Record(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if recording.Size != 44+100 {
		t.Fatalf("unexpected artifact size: %d", recording.Size)
	}
	want := time.Duration(float64(100) / float64(testByteRate) * float64(time.Second))
	if recording.Duration != want {
		t.Fatalf("unexpected duration: %s", recording.Duration)
	}
}

func TestWAVRecorderNoAudioFails(t *testing.T) {
	t.Parallel()

	capture := &fakeCapture{}
	rec := NewWAVRecorder(capture, testAudioConfig(), t.TempDir(), testLogger())

	_, err := rec.Record(context.Background(), 10*time.Millisecond)
	if !errors.Is(err, domain.ErrAudioUnavailable) {
		t.Fatalf("expected audio unavailable error, got %v", err)
	}
}

func TestWAVRecorderStartFailurePropagates(t *testing.T) {
	t.Parallel()

	capture := &fakeCapture{startErr: fmt.Errorf("%w: no capture device", domain.ErrAudioUnavailable)}
	rec := NewWAVRecorder(capture, testAudioConfig(), t.TempDir(), testLogger())

	_, err := rec.Record(context.Background(), 10*time.Millisecond)
	if !errors.Is(err, domain.ErrAudioUnavailable) {
		t.Fatalf("expected audio unavailable error, got %v", err)
	}
}

func TestWAVRecorderCollisionAddsSuffix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	first := NewWAVRecorder(&fakeCapture{pcm: make([]byte, 160)}, testAudioConfig(), dir, testLogger())
	first.now = fixedNow(at)
	firstRec, err := first.Record(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("first record failed: %v", err)
	}

	second := NewWAVRecorder(&fakeCapture{pcm: make([]byte, 160)}, testAudioConfig(), dir, testLogger())
	second.now = fixedNow(at)
	secondRec, err := second.Record(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("second record failed: %v", err)
	}

	if firstRec.Path == secondRec.Path {
		t.Fatalf("expected distinct artifact paths, both %q", firstRec.Path)
	}
	if !strings.HasPrefix(filepath.Base(secondRec.Path), "alert_20240102_030405_") {
		t.Fatalf("unexpected collision name: %q", secondRec.Path)
	}
	for _, path := range []string{firstRec.Path, secondRec.Path} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("artifact missing: %v", err)
		}
	}
}

func TestWAVRecorderRejectsNonPositiveDuration(t *testing.T) {
	t.Parallel()

	rec := NewWAVRecorder(&fakeCapture{pcm: make([]byte, 16)}, testAudioConfig(), t.TempDir(), testLogger())

	_, err := rec.Record(context.Background(), 0)
	if !errors.Is(err, domain.ErrAudioUnavailable) {
		t.Fatalf("expected audio unavailable error, got %v", err)
	}
}
