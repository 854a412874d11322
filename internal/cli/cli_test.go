package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/cryptobox"
)

// setTestEnv points every path and binary the commands resolve at a
// throwaway location so ambient configuration cannot leak in.
func setTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SAFEWORD_ENGINE_COMMAND", "sh")
	t.Setenv("SAFEWORD_FFMPEG_COMMAND", "sh")
	t.Setenv("SAFEWORD_RECORDINGS_DIR", filepath.Join(dir, "recordings"))
	t.Setenv("SAFEWORD_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("SAFEWORD_EVENT_LOG", filepath.Join(dir, "recordings", "events.log"))
	t.Setenv("SAFEWORD_ENCRYPTION_KEY", "a-strong-enough-test-key")
	t.Setenv("SAFEWORD_CONTACT_PHONES", "")
	t.Setenv("SAFEWORD_CONTACT_EMAILS", "")
	return dir
}

func TestDecryptCmdRoundTrip(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "alert.wav")
	payload := []byte("RIFF fake wav payload")
	if err := os.WriteFile(plain, payload, 0o600); err != nil {
		t.Fatalf("write plaintext: %v", err)
	}

	box, err := cryptobox.New("round-trip-key")
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	sealed, err := box.EncryptFile(plain, false)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	out := filepath.Join(dir, "restored.wav")
	cmd := DecryptCmd()
	cmd.SetArgs([]string{"--key", "round-trip-key", "--out", out, sealed})
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("decrypt command failed: %v", err)
	}

	restored, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if !bytes.Equal(restored, payload) {
		t.Fatalf("restored payload differs: %q", restored)
	}
	if !strings.Contains(buf.String(), out) {
		t.Fatalf("expected output path in command output, got %q", buf.String())
	}
}

func TestDecryptCmdWrongKey(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "alert.wav")
	if err := os.WriteFile(plain, []byte("payload"), 0o600); err != nil {
		t.Fatalf("write plaintext: %v", err)
	}

	box, err := cryptobox.New("right-key")
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	sealed, err := box.EncryptFile(plain, true)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	cmd := DecryptCmd()
	cmd.SetArgs([]string{"--key", "wrong-key", sealed})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected decrypt failure with wrong key")
	}
}

func TestDoctorCmdHealthyEnvironment(t *testing.T) {
	setTestEnv(t)

	cmd := DoctorCmd()
	cmd.SetArgs([]string{"--quiet"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("doctor reported issues in a healthy environment: %v", err)
	}
}

func TestDoctorCmdMissingEngine(t *testing.T) {
	setTestEnv(t)
	t.Setenv("SAFEWORD_ENGINE_COMMAND", "definitely-not-a-real-binary-42")

	cmd := DoctorCmd()
	cmd.SetArgs([]string{"--quiet"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected doctor to fail when the engine binary is missing")
	}
}

func TestDoctorCmdFlagsDefaultKey(t *testing.T) {
	setTestEnv(t)
	t.Setenv("SAFEWORD_ENCRYPTION_KEY", "")
	t.Setenv("ENCRYPTION_KEY", "")

	cmd := DoctorCmd()
	cmd.SetArgs([]string{"--quiet"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected doctor to fail on the built-in default key")
	}
}

func TestVersionCmdPrintsBuildInfo(t *testing.T) {
	cmd := VersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(buf.String(), "safeword") {
		t.Fatalf("unexpected version output: %q", buf.String())
	}
}

func TestServeCmdServesAndShutsDown(t *testing.T) {
	setTestEnv(t)
	t.Setenv("SAFEWORD_HTTP_ADDR", "127.0.0.1:0")
	t.Setenv("SAFEWORD_LOG_LEVEL", "panic")

	cmd := ServeCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- cmd.ExecuteContext(ctx)
	}()

	// Give the server a moment to bind before asking it to stop.
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not shut down after cancellation")
	}
}
