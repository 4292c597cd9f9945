package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
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

type ASRConfig struct {
	Mode      string `yaml:"mode"` // mock, exec
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
}

type DiarizationConfig struct {
	Mode      string `yaml:"mode"` // mock, exec
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
	AuthToken string `yaml:"auth_token"`
}

type PipelineConfig struct {
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
	WorkDir          string `yaml:"work_dir"`
	MaxUploadBytes   int64  `yaml:"max_upload_bytes"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, persistent
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	Subject        string   `yaml:"subject"`
}

type Config struct {
	ServiceName string            `yaml:"service_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	ASR         ASRConfig         `yaml:"asr"`
	Diarization DiarizationConfig `yaml:"diarization"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Store       StoreConfig       `yaml:"store"`
	Bus         BusConfig         `yaml:"bus"`
}

func Default() Config {
	return Config{
		ServiceName: "diascribed",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		ASR: ASRConfig{
			Mode: "mock",
		},
		Diarization: DiarizationConfig{
			Mode: "mock",
		},
		Pipeline: PipelineConfig{
			RequestTimeoutMS: 600000,
			WorkDir:          "",
			MaxUploadBytes:   512 << 20,
		},
		Store: StoreConfig{
			Path:          "./data/diascribe.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxRecords:    10000,
		},
		Bus: BusConfig{
			Enabled:        false,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			Subject:        "transcript.completed",
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
	overrideString(&cfg.ServiceName, "DIASCRIBE_SERVICE_NAME")
	overrideString(&cfg.Environment, "DIASCRIBE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "DIASCRIBE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "DIASCRIBE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "DIASCRIBE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "DIASCRIBE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "DIASCRIBE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.ASR.Mode, "DIASCRIBE_ASR_MODE")
	overrideString(&cfg.ASR.Command, "DIASCRIBE_ASR_COMMAND")
	overrideString(&cfg.ASR.ModelPath, "DIASCRIBE_ASR_MODEL_PATH")
	overrideString(&cfg.ASR.Language, "DIASCRIBE_ASR_LANGUAGE")
	overrideString(&cfg.Diarization.Mode, "DIASCRIBE_DIARIZATION_MODE")
	overrideString(&cfg.Diarization.Command, "DIASCRIBE_DIARIZATION_COMMAND")
	overrideString(&cfg.Diarization.ModelPath, "DIASCRIBE_DIARIZATION_MODEL_PATH")
	overrideString(&cfg.Diarization.AuthToken, "DIASCRIBE_DIARIZATION_AUTH_TOKEN")
	overrideInt(&cfg.Pipeline.RequestTimeoutMS, "DIASCRIBE_PIPELINE_REQUEST_TIMEOUT_MS")
	overrideString(&cfg.Pipeline.WorkDir, "DIASCRIBE_PIPELINE_WORK_DIR")
	overrideInt64(&cfg.Pipeline.MaxUploadBytes, "DIASCRIBE_PIPELINE_MAX_UPLOAD_BYTES")
	overrideString(&cfg.Store.Path, "DIASCRIBE_STORE_PATH")
	overrideString(&cfg.Store.RetentionMode, "DIASCRIBE_STORE_RETENTION_MODE")
	overrideInt(&cfg.Store.RetentionDays, "DIASCRIBE_STORE_RETENTION_DAYS")
	overrideInt(&cfg.Store.MaxRecords, "DIASCRIBE_STORE_MAX_RECORDS")
	overrideBool(&cfg.Store.VacuumOnStart, "DIASCRIBE_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Bus.Enabled, "DIASCRIBE_BUS_ENABLED")
	overrideStringSlice(&cfg.Bus.Servers, "DIASCRIBE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "DIASCRIBE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "DIASCRIBE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "DIASCRIBE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "DIASCRIBE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "DIASCRIBE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.Subject, "DIASCRIBE_BUS_SUBJECT")
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
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.ASR.Mode {
	case "mock", "exec":
	default:
		return errors.New("asr.mode must be one of mock|exec")
	}
	if cfg.ASR.Mode == "exec" && cfg.ASR.Command == "" {
		return errors.New("asr.command must be set when mode=exec")
	}
	switch cfg.Diarization.Mode {
	case "mock", "exec":
	default:
		return errors.New("diarization.mode must be one of mock|exec")
	}
	if cfg.Diarization.Mode == "exec" && cfg.Diarization.Command == "" {
		return errors.New("diarization.command must be set when mode=exec")
	}
	if cfg.Pipeline.RequestTimeoutMS <= 0 {
		return errors.New("pipeline.request_timeout_ms must be positive")
	}
	if cfg.Pipeline.MaxUploadBytes <= 0 {
		return errors.New("pipeline.max_upload_bytes must be positive")
	}
	switch cfg.Store.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("store.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.Store.RetentionMode == "persistent" && cfg.Store.Path == "" {
		return errors.New("store.path must not be empty when persistence is enabled")
	}
	if cfg.Store.RetentionDays < 0 {
		return errors.New("store.retention_days must be >= 0")
	}
	if cfg.Bus.Enabled {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when bus is enabled")
		}
		if cfg.Bus.Subject == "" {
			return errors.New("bus.subject must not be empty when bus is enabled")
		}
	}
	return nil
}
