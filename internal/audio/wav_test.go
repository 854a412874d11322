package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestPCMToWAVHeader(t *testing.T) {
	t.Parallel()

	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	wav := pcmToWAV(pcm, 16000, 1, 16)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("unexpected wav length: %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers: %q %q", wav[0:4], wav[8:12])
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Fatalf("unexpected riff size: %d", got)
	}
	if string(wav[12:16]) != "fmt " {
		t.Fatalf("missing fmt chunk: %q", wav[12:16])
	}
	if got := binary.LittleEndian.Uint32(wav[16:20]); got != 16 {
		t.Fatalf("unexpected fmt chunk size: %d", got)
	}
	if got := binary.LittleEndian.Uint16(wav[20:22]); got != 1 {
		t.Fatalf("expected PCM format tag, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Fatalf("unexpected channel count: %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Fatalf("unexpected sample rate: %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Fatalf("unexpected byte rate: %d", got)
	}
	if got := binary.LittleEndian.Uint16(wav[32:34]); got != 2 {
		t.Fatalf("unexpected block align: %d", got)
	}
	if got := binary.LittleEndian.Uint16(wav[34:36]); got != 16 {
		t.Fatalf("unexpected bits per sample: %d", got)
	}
	if string(wav[36:40]) != "data" {
		t.Fatalf("missing data chunk: %q", wav[36:40])
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("unexpected data length: %d", got)
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Fatalf("payload does not match input pcm")
	}
}

func TestPCMToWAVStereo(t *testing.T) {
	t.Parallel()

	wav := pcmToWAV(make([]byte, 16), 44100, 2, 16)

	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 2 {
		t.Fatalf("unexpected channel count: %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 44100*2*2 {
		t.Fatalf("unexpected byte rate: %d", got)
	}
	if got := binary.LittleEndian.Uint16(wav[32:34]); got != 4 {
		t.Fatalf("unexpected block align: %d", got)
	}
}

func TestPCMToWAVEmptyPayload(t *testing.T) {
	t.Parallel()

	wav := pcmToWAV(nil, 16000, 1, 16)

	if len(wav) != 44 {
		t.Fatalf("expected bare header, got %d bytes", len(wav))
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 0 {
		t.Fatalf("unexpected data length: %d", got)
	}
}
