package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/domain"
)

func testListenerConfig() domain.ListenerConfig {
	return domain.ListenerConfig{
		KeyPhrase:   "pineapple",
		Sensitivity: 0.5,
		Module:      "vosk-direct",
		SampleRate:  16000,
	}
}

func TestRunnerSpawnStreamsLines(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "engine.sh", "#!/usr/bin/env bash\necho 'engine ready'\necho 'Wake word detected confidence=0.91'\nsleep 2\n")
	runner := NewRunner(script, time.Second)

	proc, err := runner.Spawn(context.Background(), testListenerConfig())
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	defer proc.Stop()

	first := readLine(t, proc.Lines())
	if first != "engine ready" {
		t.Fatalf("unexpected first line: %q", first)
	}
	second := readLine(t, proc.Lines())
	if !strings.Contains(second, "detected") {
		t.Fatalf("unexpected second line: %q", second)
	}
	if proc.PID() <= 0 {
		t.Fatalf("expected a live pid, got %d", proc.PID())
	}
	if err := proc.Err(); err != nil {
		t.Fatalf("Err should be nil while running, got %v", err)
	}
}

func TestRunnerSpawnPassesArgs(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "args.sh", "#!/usr/bin/env bash\necho \"$@\"\nsleep 2\n")
	runner := NewRunner(script, time.Second)

	proc, err := runner.Spawn(context.Background(), testListenerConfig())
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	defer proc.Stop()

	line := readLine(t, proc.Lines())
	for _, want := range []string{"--module vosk-direct", "--keyword pineapple", "--sensitivity 0.50", "--rate 16000"} {
		if !strings.Contains(line, want) {
			t.Fatalf("args line %q missing %q", line, want)
		}
	}
}

func TestRunnerStopTerminatesWithinGrace(t *testing.T) {
	t.Parallel()

	// Traps nothing, so the interrupt lands and the process exits promptly.
	script := writeScript(t, "stoppable.sh", "#!/usr/bin/env bash\necho 'ready'\nsleep 30\n")
	runner := NewRunner(script, 2*time.Second)

	proc, err := runner.Spawn(context.Background(), testListenerConfig())
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	readLine(t, proc.Lines())

	start := time.Now()
	if err := proc.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("stop took too long: %s", elapsed)
	}

	select {
	case <-proc.Done():
	case <-time.After(time.Second):
		t.Fatalf("done not closed after stop")
	}
}

func TestRunnerStopEscalatesToKill(t *testing.T) {
	t.Parallel()

	// Ignores SIGINT; only the kill escalation can end it.
	script := writeScript(t, "stubborn.sh", "#!/usr/bin/env bash\ntrap '' INT\necho 'ready'\nwhile true; do sleep 1; done\n")
	runner := NewRunner(script, 300*time.Millisecond)

	proc, err := runner.Spawn(context.Background(), testListenerConfig())
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	readLine(t, proc.Lines())

	if err := proc.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	select {
	case <-proc.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("kill escalation did not reap the process")
	}
}

func TestRunnerCrashClosesLinesAndReportsErr(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "crash.sh", "#!/usr/bin/env bash\necho 'ready'\necho 'model load failed' 1>&2\nexit 3\n")
	runner := NewRunner(script, time.Second)

	proc, err := runner.Spawn(context.Background(), testListenerConfig())
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	readLine(t, proc.Lines())
	if _, ok := <-proc.Lines(); ok {
		t.Fatalf("lines should close after exit")
	}

	select {
	case <-proc.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("done not closed after crash")
	}
	err = proc.Err()
	if err == nil {
		t.Fatalf("expected exit error after crash")
	}
	if !strings.Contains(err.Error(), "model load failed") {
		t.Fatalf("expected stderr detail in error, got %v", err)
	}
}

func TestRunnerSpawnMissingCommand(t *testing.T) {
	t.Parallel()

	runner := NewRunner(filepath.Join(t.TempDir(), "does-not-exist"), time.Second)
	if _, err := runner.Spawn(context.Background(), testListenerConfig()); err == nil {
		t.Fatalf("expected spawn error for missing command")
	}
}

func TestNormalizeExitErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-lc", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeExitErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func readLine(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-lines:
		if !ok {
			t.Fatalf("lines channel closed early")
		}
		return line
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for line")
		return ""
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
