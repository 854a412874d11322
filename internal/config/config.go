package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultPassphrase is the fallback encryption key used when no key is
// configured. Deployments must override it; doctor flags it as unsafe.
const DefaultPassphrase = "default-key-change-me"

// Config stores runtime configuration for the safeword service.
type Config struct {
	Engine EngineConfig
	Audio  AudioConfig
	Action ActionConfig
	Notify NotifyConfig
	Crypto CryptoConfig
	Data   DataConfig
	HTTP   HTTPConfig
	Log    LogConfig
}

type EngineConfig struct {
	Command      string
	KeyPhrase    string
	Sensitivity  float64
	Module       string
	SampleRate   int
	ReadyTimeout time.Duration
	StopGrace    time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type ActionConfig struct {
	RecordDuration time.Duration
	Encrypt        bool
	KeepPlaintext  bool
	GracePeriod    time.Duration
	Cooldown       time.Duration
	ContactPhones  []string
	ContactEmails  []string
}

type NotifyConfig struct {
	SMTPServer     string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	TwilioSID      string
	TwilioToken    string
	TwilioFrom     string
	RequestTimeout time.Duration
}

type CryptoConfig struct {
	Passphrase string
}

type DataConfig struct {
	RecordingsDir string
	SamplesDir    string
	EventLogPath  string
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level string
	JSON  bool
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	recordSeconds := envOrDefaultInt("SAFEWORD_RECORD_DURATION_S", 30)
	recordingsDir := envOrDefault("SAFEWORD_RECORDINGS_DIR", "recordings")

	cfg := Config{
		Engine: EngineConfig{
			Command:      envOrDefault("SAFEWORD_ENGINE_COMMAND", "safeword-engine"),
			KeyPhrase:    envOrDefault("SAFEWORD_KEY_PHRASE", "pineapple"),
			Sensitivity:  envOrDefaultFloat("SAFEWORD_SENSITIVITY", 0.5),
			Module:       envOrDefault("SAFEWORD_ENGINE_MODULE", "ovos-ww-plugin-vosk"),
			SampleRate:   envOrDefaultInt("SAFEWORD_ENGINE_SAMPLE_RATE", 16000),
			ReadyTimeout: time.Duration(firstNonNegativeInt("SAFEWORD_READY_TIMEOUT_MS", "", 10000)) * time.Millisecond,
			StopGrace:    time.Duration(firstNonNegativeInt("SAFEWORD_STOP_GRACE_MS", "", 5000)) * time.Millisecond,
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("SAFEWORD_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("SAFEWORD_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("SAFEWORD_AUDIO_INPUT_DEVICE"),
				os.Getenv("PULSE_SOURCE"),
				"default",
			),
			SampleRate: envOrDefaultInt("SAFEWORD_SAMPLE_RATE", 16000),
			Channels:   envOrDefaultInt("SAFEWORD_CHANNELS", 1),
		},
		Action: ActionConfig{
			RecordDuration: time.Duration(recordSeconds) * time.Second,
			Encrypt:        envOrDefaultBool("SAFEWORD_ENCRYPT_RECORDINGS", true),
			KeepPlaintext:  envOrDefaultBool("SAFEWORD_KEEP_PLAINTEXT", false),
			GracePeriod:    time.Duration(firstNonNegativeInt("SAFEWORD_GRACE_PERIOD_S", "", 0)) * time.Second,
			Cooldown:       time.Duration(firstNonNegativeInt("SAFEWORD_COOLDOWN_S", "", recordSeconds)) * time.Second,
			ContactPhones:  splitList(os.Getenv("SAFEWORD_CONTACT_PHONES")),
			ContactEmails:  splitList(os.Getenv("SAFEWORD_CONTACT_EMAILS")),
		},
		Notify: NotifyConfig{
			SMTPServer:     envOrDefault("SMTP_SERVER", "smtp.gmail.com"),
			SMTPPort:       envOrDefaultInt("SMTP_PORT", 587),
			SMTPUsername:   strings.TrimSpace(os.Getenv("SMTP_USERNAME")),
			SMTPPassword:   strings.TrimSpace(os.Getenv("SMTP_PASSWORD")),
			TwilioSID:      strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID")),
			TwilioToken:    strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
			TwilioFrom:     strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER")),
			RequestTimeout: time.Duration(firstNonNegativeInt("SAFEWORD_NOTIFY_TIMEOUT_MS", "", 10000)) * time.Millisecond,
		},
		Crypto: CryptoConfig{
			Passphrase: firstNonEmpty(
				os.Getenv("SAFEWORD_ENCRYPTION_KEY"),
				os.Getenv("ENCRYPTION_KEY"),
				DefaultPassphrase,
			),
		},
		Data: DataConfig{
			RecordingsDir: recordingsDir,
			SamplesDir:    envOrDefault("SAFEWORD_DATA_DIR", "data"),
			EventLogPath:  envOrDefault("SAFEWORD_EVENT_LOG", filepath.Join(recordingsDir, "events.log")),
		},
		HTTP: HTTPConfig{
			Addr:            envOrDefault("SAFEWORD_HTTP_ADDR", "127.0.0.1:5001"),
			ReadTimeout:     time.Duration(firstNonNegativeInt("SAFEWORD_HTTP_READ_TIMEOUT_MS", "", 15000)) * time.Millisecond,
			WriteTimeout:    time.Duration(firstNonNegativeInt("SAFEWORD_HTTP_WRITE_TIMEOUT_MS", "", 30000)) * time.Millisecond,
			ShutdownTimeout: time.Duration(firstNonNegativeInt("SAFEWORD_HTTP_SHUTDOWN_TIMEOUT_MS", "", 10000)) * time.Millisecond,
		},
		Log: LogConfig{
			Level: firstNonEmpty(os.Getenv("SAFEWORD_LOG_LEVEL"), os.Getenv("LOG_LEVEL"), "info"),
			JSON:  envOrDefaultBool("SAFEWORD_LOG_JSON", true),
		},
	}

	if cfg.Engine.Sensitivity < 0 || cfg.Engine.Sensitivity > 1 {
		return Config{}, fmt.Errorf("sensitivity %.2f outside [0, 1]", cfg.Engine.Sensitivity)
	}
	if cfg.Action.RecordDuration <= 0 {
		return Config{}, fmt.Errorf("record duration must be positive, got %ds", recordSeconds)
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Engine.SampleRate <= 0 {
		cfg.Engine.SampleRate = 16000
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func firstNonNegativeInt(primary string, secondary string, fallback int) int {
	for _, key := range []string{primary, secondary} {
		if key == "" {
			continue
		}
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}
