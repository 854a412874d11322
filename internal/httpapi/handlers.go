package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/cryptobox"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/domain"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/samples"
)

// maxSampleUpload bounds multipart uploads; training clips are a few
// seconds of 16kHz mono audio.
const maxSampleUpload = 10 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": serviceName,
		"version": s.deps.Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Samples.Stats()
	if err != nil {
		s.log.WithError(err).Warn("dataset stats unavailable")
	}

	action := map[string]interface{}{
		"config":               toActionConfigDTO(s.deps.Actions.Config()),
		"cooldown_remaining_s": s.deps.Actions.CooldownRemaining().Seconds(),
	}
	if run, ok := s.deps.Actions.Pending(); ok {
		action["pending"] = run
	}
	if run, ok := s.deps.Actions.LastRun(); ok {
		action["last_run"] = run
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"listener":       s.deps.Detection.Status(),
		"action":         action,
		"dataset":        stats,
		"recordings_dir": s.deps.RecordingsDir,
	})
}

func (s *Server) handleStartDetection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		KeyPhrase   *string  `json:"key_phrase"`
		Sensitivity *float64 `json:"sensitivity"`
		Module      *string  `json:"module"`
		SampleRate  *int     `json:"sample_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := s.deps.DefaultListener
	if req.KeyPhrase != nil {
		cfg.KeyPhrase = *req.KeyPhrase
	}
	if req.Sensitivity != nil {
		cfg.Sensitivity = *req.Sensitivity
	}
	if req.Module != nil {
		cfg.Module = *req.Module
	}
	if req.SampleRate != nil {
		cfg.SampleRate = *req.SampleRate
	}

	err := s.deps.Detection.Start(r.Context(), cfg)
	switch {
	case errors.Is(err, domain.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrEngineUnavailable), errors.Is(err, domain.ErrEngineTimeout):
		writeError(w, http.StatusBadGateway, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"listener": s.deps.Detection.Status(),
		})
	}
}

func (s *Server) handleStopDetection(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Detection.Stop(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"listener": s.deps.Detection.Status(),
	})
}

func (s *Server) handleTriggerAlert(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Actions.TriggerManual(r.Context())
	if cd, ok := domain.AsCooldown(err); ok {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":         "cooldown active",
			"retry_after_s": cd.Remaining.Seconds(),
		})
		return
	}
	switch {
	case errors.Is(err, domain.ErrRunActive), errors.Is(err, domain.ErrRunPending):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"run":     run,
		})
	}
}

func (s *Server) handleCancelAlert(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Actions.CancelPending()
	switch {
	case errors.Is(err, domain.ErrNoPendingRun):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

func (s *Server) handleGetActionConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"config": toActionConfigDTO(s.deps.Actions.Config()),
	})
}

func (s *Server) handleSetActionConfig(w http.ResponseWriter, r *http.Request) {
	dto := toActionConfigDTO(s.deps.Actions.Config())
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.deps.Actions.Configure(dto.toDomain(s.deps.RecordingsDir)); err != nil {
		if errors.Is(err, domain.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"config":  toActionConfigDTO(s.deps.Actions.Config()),
	})
}

func (s *Server) handleDetectionEvents(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.EventLog.Recent(10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	events := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		events = append(events, map[string]interface{}{
			"timestamp": entry.At.UTC().Format(time.RFC3339),
			"kind":      string(entry.Kind),
			"message":   entry.Message,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	type recordingDTO struct {
		Filename  string `json:"filename"`
		Size      int64  `json:"size"`
		Encrypted bool   `json:"encrypted"`
		Created   string `json:"created"`
	}

	entries, err := os.ReadDir(s.deps.RecordingsDir)
	if err != nil && !os.IsNotExist(err) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	recordings := make([]recordingDTO, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		isWAV := strings.HasSuffix(name, ".wav")
		isSealed := strings.HasSuffix(name, cryptobox.EncryptedSuffix)
		if entry.IsDir() || (!isWAV && !isSealed) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		recordings = append(recordings, recordingDTO{
			Filename:  name,
			Size:      info.Size(),
			Encrypted: isSealed,
			Created:   info.ModTime().UTC().Format(time.RFC3339),
		})
	}
	sort.Slice(recordings, func(i, j int) bool { return recordings[i].Created > recordings[j].Created })

	writeJSON(w, http.StatusOK, map[string]interface{}{"recordings": recordings})
}

func (s *Server) handleListSamples(w http.ResponseWriter, r *http.Request) {
	listed, err := s.deps.Samples.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if listed == nil {
		listed = []samples.Sample{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"samples": listed})
}

func (s *Server) handleSampleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Samples.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleClearSamples(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.deps.Samples.Clear()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"deleted_count": deleted,
	})
}

func (s *Server) handleUploadSample(w http.ResponseWriter, r *http.Request) {
	label := mux.Vars(r)["label"]

	r.Body = http.MaxBytesReader(w, r.Body, maxSampleUpload)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	wav, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	sample, err := s.deps.Samples.Save(label, wav)
	switch {
	case errors.Is(err, samples.ErrInvalidLabel), errors.Is(err, samples.ErrSampleTooSmall):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stats, err := s.deps.Samples.Stats()
	if err != nil {
		s.log.WithError(err).Warn("dataset stats unavailable")
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"path":     sample.Path,
		"filename": sample.Filename,
		"label":    sample.Label,
		"size":     sample.Size,
		"dataset_stats": map[string]int{
			"wake_word":     stats.WakeWord,
			"not_wake_word": stats.NotWakeWord,
		},
	})
}

func (s *Server) handlePlaySample(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	path, err := s.deps.Samples.Resolve(vars["label"], vars["filename"])
	if s.writeSampleLookupError(w, err) {
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

func (s *Server) handleDeleteSample(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	err := s.deps.Samples.Delete(vars["label"], vars["filename"])
	if s.writeSampleLookupError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Deleted " + vars["filename"],
	})
}

// writeSampleLookupError maps store lookup failures onto HTTP codes and
// reports whether a response was written.
func (s *Server) writeSampleLookupError(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, samples.ErrInvalidLabel), errors.Is(err, samples.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, os.ErrNotExist):
		writeError(w, http.StatusNotFound, "file not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
	return true
}

func (s *Server) handleCheckEngine(w http.ResponseWriter, r *http.Request) {
	enginePath, engineErr := exec.LookPath(s.deps.EngineCommand)
	ffmpegPath, ffmpegErr := exec.LookPath(s.deps.FFMPEGCommand)

	installed := engineErr == nil
	message := "engine command found at " + enginePath
	if !installed {
		message = "engine command " + s.deps.EngineCommand + " not found in PATH"
	}

	status := http.StatusOK
	if !installed {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]interface{}{
		"installed": installed,
		"message":   message,
		"engine": map[string]interface{}{
			"command": s.deps.EngineCommand,
			"found":   installed,
			"path":    enginePath,
		},
		"ffmpeg": map[string]interface{}{
			"command": s.deps.FFMPEGCommand,
			"found":   ffmpegErr == nil,
			"path":    ffmpegPath,
		},
	})
}

// actionConfigDTO mirrors the JSON body of /action-config. Durations
// travel as seconds. Absent fields keep their current values because the
// decoder runs over a DTO prefilled from the live config.
type actionConfigDTO struct {
	RecordDuration float64          `json:"record_duration"`
	Encrypt        bool             `json:"encrypt_recordings"`
	KeepPlaintext  bool             `json:"keep_plaintext"`
	GracePeriod    float64          `json:"grace_period"`
	Cooldown       float64          `json:"cooldown"`
	Contacts       []domain.Contact `json:"contacts"`
}

func toActionConfigDTO(cfg domain.ActionConfig) actionConfigDTO {
	contacts := cfg.Contacts
	if contacts == nil {
		contacts = []domain.Contact{}
	}
	return actionConfigDTO{
		RecordDuration: cfg.RecordDuration.Seconds(),
		Encrypt:        cfg.Encrypt,
		KeepPlaintext:  cfg.KeepPlaintext,
		GracePeriod:    cfg.GracePeriod.Seconds(),
		Cooldown:       cfg.Cooldown.Seconds(),
		Contacts:       contacts,
	}
}

func (dto actionConfigDTO) toDomain(recordingsDir string) domain.ActionConfig {
	return domain.ActionConfig{
		RecordDuration: time.Duration(dto.RecordDuration * float64(time.Second)),
		Encrypt:        dto.Encrypt,
		KeepPlaintext:  dto.KeepPlaintext,
		GracePeriod:    time.Duration(dto.GracePeriod * float64(time.Second)),
		Cooldown:       time.Duration(dto.Cooldown * float64(time.Second)),
		Contacts:       dto.Contacts,
		RecordingsDir:  recordingsDir,
	}
}
