package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caplight/caplight/internal/caption"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
	// CapacityBytes is a soft budget; saves still succeed above it but
	// NearCapacityLimit reports true past the warn ratio.
	CapacityBytes int64   `yaml:"capacity_bytes"`
	WarnRatio     float64 `yaml:"warn_ratio"`
}

type RecognizerConfig struct {
	Mode            string `yaml:"mode"` // mock, exec
	Command         string `yaml:"command"`
	Language        string `yaml:"language"`
	Continuous      bool   `yaml:"continuous"`
	InterimResults  bool   `yaml:"interim_results"`
	MaxAlternatives int    `yaml:"max_alternatives"`
	AutoRestart     bool   `yaml:"auto_restart"`
	SpeakerLabel    string `yaml:"speaker_label"`
}

type SharingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SenderID string `yaml:"sender_id"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Store       StoreConfig      `yaml:"store"`
	Recognizer  RecognizerConfig `yaml:"recognizer"`
	Display     caption.Settings `yaml:"display"`
	Sharing     SharingConfig    `yaml:"sharing"`
}

func Default() Config {
	return Config{
		RuntimeName: "caplightd",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8089,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path:          "./data/caplight-sessions.db",
			CapacityBytes: 5 * 1024 * 1024,
			WarnRatio:     0.9,
		},
		Recognizer: RecognizerConfig{
			Mode:            "mock",
			Language:        "en-US",
			Continuous:      true,
			InterimResults:  true,
			MaxAlternatives: 1,
			AutoRestart:     true,
			SpeakerLabel:    "You",
		},
		Display: caption.Settings{
			FontSize:   "medium",
			Position:   "bottom",
			Background: "translucent",
			TextColor:  "white",
			MaxLines:   2,
		},
		Sharing: SharingConfig{
			Enabled:  false,
			SenderID: "caplight-local",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "CAPLIGHT_RUNTIME_NAME")
	overrideString(&cfg.Environment, "CAPLIGHT_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "CAPLIGHT_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "CAPLIGHT_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "CAPLIGHT_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "CAPLIGHT_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "CAPLIGHT_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "CAPLIGHT_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "CAPLIGHT_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "CAPLIGHT_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "CAPLIGHT_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "CAPLIGHT_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "CAPLIGHT_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "CAPLIGHT_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "CAPLIGHT_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "CAPLIGHT_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "CAPLIGHT_STORE_PATH")
	overrideInt64(&cfg.Store.CapacityBytes, "CAPLIGHT_STORE_CAPACITY_BYTES")
	overrideFloat(&cfg.Store.WarnRatio, "CAPLIGHT_STORE_WARN_RATIO")
	overrideString(&cfg.Recognizer.Mode, "CAPLIGHT_RECOGNIZER_MODE")
	overrideString(&cfg.Recognizer.Command, "CAPLIGHT_RECOGNIZER_COMMAND")
	overrideString(&cfg.Recognizer.Language, "CAPLIGHT_RECOGNIZER_LANGUAGE")
	overrideBool(&cfg.Recognizer.Continuous, "CAPLIGHT_RECOGNIZER_CONTINUOUS")
	overrideBool(&cfg.Recognizer.InterimResults, "CAPLIGHT_RECOGNIZER_INTERIM_RESULTS")
	overrideInt(&cfg.Recognizer.MaxAlternatives, "CAPLIGHT_RECOGNIZER_MAX_ALTERNATIVES")
	overrideBool(&cfg.Recognizer.AutoRestart, "CAPLIGHT_RECOGNIZER_AUTO_RESTART")
	overrideString(&cfg.Recognizer.SpeakerLabel, "CAPLIGHT_RECOGNIZER_SPEAKER_LABEL")
	overrideString(&cfg.Display.FontSize, "CAPLIGHT_DISPLAY_FONT_SIZE")
	overrideString(&cfg.Display.Position, "CAPLIGHT_DISPLAY_POSITION")
	overrideString(&cfg.Display.Background, "CAPLIGHT_DISPLAY_BACKGROUND")
	overrideString(&cfg.Display.TextColor, "CAPLIGHT_DISPLAY_TEXT_COLOR")
	overrideInt(&cfg.Display.MaxLines, "CAPLIGHT_DISPLAY_MAX_LINES")
	overrideBool(&cfg.Sharing.Enabled, "CAPLIGHT_SHARING_ENABLED")
	overrideString(&cfg.Sharing.SenderID, "CAPLIGHT_SHARING_SENDER_ID")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Sharing.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Sharing.SenderID == "" {
			return errors.New("sharing.sender_id must not be empty when sharing is enabled")
		}
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if cfg.Store.CapacityBytes <= 0 {
		return errors.New("store.capacity_bytes must be positive")
	}
	if cfg.Store.WarnRatio <= 0 || cfg.Store.WarnRatio > 1 {
		return errors.New("store.warn_ratio must be in (0, 1]")
	}
	switch cfg.Recognizer.Mode {
	case "mock", "exec":
	default:
		return errors.New("recognizer.mode must be one of mock|exec")
	}
	if cfg.Recognizer.Mode == "exec" && cfg.Recognizer.Command == "" {
		return errors.New("recognizer.command must be set when mode=exec")
	}
	if cfg.Recognizer.Language == "" {
		return errors.New("recognizer.language must not be empty")
	}
	if cfg.Recognizer.MaxAlternatives <= 0 {
		return errors.New("recognizer.max_alternatives must be >= 1")
	}
	if !caption.ValidFontSize(cfg.Display.FontSize) {
		return errors.New("display.font_size must be one of small|medium|large|x-large")
	}
	if !caption.ValidPosition(cfg.Display.Position) {
		return errors.New("display.position must be one of top|bottom|overlay")
	}
	if !caption.ValidBackground(cfg.Display.Background) {
		return errors.New("display.background must be one of solid|translucent|none")
	}
	if !caption.ValidTextColor(cfg.Display.TextColor) {
		return errors.New("display.text_color must be one of white|yellow|cyan|black")
	}
	if cfg.Display.MaxLines <= 0 {
		return errors.New("display.max_lines must be >= 1")
	}
	return nil
}
