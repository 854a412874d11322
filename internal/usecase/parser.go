package usecase

import (
	"strconv"
	"strings"
)

// lineKind classifies one line of wake-word engine output.
type lineKind int

const (
	lineNoise lineKind = iota
	lineDetection
	lineError
)

var errorPatterns = []string{
	"error",
	"fatal",
	"traceback",
	"exception",
	"panic:",
}

// classifyLine implements the engine line protocol: a line starting with
// "!" or containing "detected" (any case) announces a wake-phrase hit.
// Detection wins over error patterns so a noisy engine cannot mask a hit.
func classifyLine(line string) lineKind {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return lineNoise
	}
	if strings.HasPrefix(trimmed, "!") {
		return lineDetection
	}
	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "detected") {
		return lineDetection
	}
	for _, pattern := range errorPatterns {
		if strings.Contains(lower, pattern) {
			return lineError
		}
	}
	return lineNoise
}

// parseConfidence extracts a score from a detection line. It accepts a
// confidence=<float> token or a bare trailing float in [0, 1]; zero means
// the engine did not report one.
func parseConfidence(line string) float64 {
	lower := strings.ToLower(strings.TrimSpace(line))

	if idx := strings.Index(lower, "confidence="); idx >= 0 {
		rest := lower[idx+len("confidence="):]
		if end := strings.IndexFunc(rest, isNotFloatRune); end >= 0 {
			rest = rest[:end]
		}
		if v, err := strconv.ParseFloat(rest, 64); err == nil && v >= 0 && v <= 1 {
			return v
		}
		return 0
	}

	fields := strings.Fields(lower)
	if len(fields) < 2 {
		return 0
	}
	if v, err := strconv.ParseFloat(fields[len(fields)-1], 64); err == nil && v >= 0 && v <= 1 {
		return v
	}
	return 0
}

func isNotFloatRune(r rune) bool {
	return r != '.' && (r < '0' || r > '9')
}
