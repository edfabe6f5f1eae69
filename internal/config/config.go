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
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type TwitchConfig struct {
	Enabled            bool   `yaml:"enabled"`
	ClientID           string `yaml:"client_id"`
	OAuthToken         string `yaml:"oauth_token"`
	BroadcasterID      string `yaml:"broadcaster_id"`
	EventSubURL        string `yaml:"eventsub_url"`
	HelixURL           string `yaml:"helix_url"`
	KeepaliveTimeoutMS int    `yaml:"keepalive_timeout_ms"`
	ReconnectDelayMS   int    `yaml:"reconnect_delay_ms"`
}

type FilterConfig struct {
	BitThreshold   int      `yaml:"bit_threshold"`
	Indicator      string   `yaml:"indicator"`
	BlacklistPath  string   `yaml:"blacklist_path"`
	PrivilegedUser string   `yaml:"privileged_user"`
	FreePassUsers  []string `yaml:"free_pass_users"`
}

type QuotaConfig struct {
	BaseCap          int `yaml:"base_cap"`
	ExtraCharsPerBit int `yaml:"extra_chars_per_bit"`
}

type SynthesisConfig struct {
	Provider        string             `yaml:"provider"` // elevenlabs, mock
	APIKey          string             `yaml:"api_key"`
	BaseURL         string             `yaml:"base_url"`
	ModelID         string             `yaml:"model_id"`
	Stability       float64            `yaml:"stability"`
	SimilarityBoost float64            `yaml:"similarity_boost"`
	SampleRate      int                `yaml:"sample_rate"`
	SaveDir         string             `yaml:"save_dir"`
	SpeedTweaks     map[string]float64 `yaml:"speed_tweaks"`
}

type AssemblyConfig struct {
	GainOffsetDB float64            `yaml:"gain_offset_db"`
	VoiceBoostDB map[string]float64 `yaml:"voice_boost_db"`
	SilenceMS    int                `yaml:"silence_ms"`
}

type PlaybackConfig struct {
	Command        string `yaml:"command"`
	HardCapSeconds int    `yaml:"hard_cap_seconds"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
}

type AuditLogConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxTasks      int    `yaml:"max_tasks"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Twitch      TwitchConfig      `yaml:"twitch"`
	Filter      FilterConfig      `yaml:"filter"`
	Quota       QuotaConfig       `yaml:"quota"`
	Synthesis   SynthesisConfig   `yaml:"synthesis"`
	Assembly    AssemblyConfig    `yaml:"assembly"`
	Playback    PlaybackConfig    `yaml:"playback"`
	AuditLog    AuditLogConfig    `yaml:"audit_log"`
	Voices      map[string]string `yaml:"voices"`
}

func Default() Config {
	return Config{
		RuntimeName: "cheervox",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Twitch: TwitchConfig{
			Enabled:            false,
			EventSubURL:        "wss://eventsub.wss.twitch.tv/ws",
			HelixURL:           "https://api.twitch.tv/helix",
			KeepaliveTimeoutMS: 30000,
			ReconnectDelayMS:   5000,
		},
		Filter: FilterConfig{
			BitThreshold:   100,
			Indicator:      "11io",
			BlacklistPath:  "./user_blacklist.txt",
			PrivilegedUser: "bemoor",
			FreePassUsers:  []string{"bemoor"},
		},
		Quota: QuotaConfig{
			BaseCap:          200,
			ExtraCharsPerBit: 2,
		},
		Synthesis: SynthesisConfig{
			Provider:        "elevenlabs",
			BaseURL:         "https://api.elevenlabs.io/v1",
			ModelID:         "eleven_monolingual_v1",
			Stability:       0.65,
			SimilarityBoost: 0.85,
			SampleRate:      22050,
			SaveDir:         "./audio",
			SpeedTweaks:     map[string]float64{"dwight": 0.95},
		},
		Assembly: AssemblyConfig{
			GainOffsetDB: 3,
			VoiceBoostDB: map[string]float64{"dwight": 8},
			SilenceMS:    600,
		},
		Playback: PlaybackConfig{
			Command:        "aplay -q",
			HardCapSeconds: 60,
			PollIntervalMS: 50,
		},
		AuditLog: AuditLogConfig{
			Path:          "./data/cheervox-audit.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxTasks:      10000,
		},
		Voices: map[string]string{
			"dwight":         "pNInz6obpgDQGcFmaJgB",
			"morgan_freeman": "TxGEqnHWrfWFTfGW9XjX",
			"rachel":         "21m00Tcm4TlvDq8ikWAM",
			"bella":          "EXAVITQu4vr4xnSDxMaL",
			"antoni":         "ErXwobaYiN019PkySvjV",
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
	overrideString(&cfg.RuntimeName, "CHEERVOX_RUNTIME_NAME")
	overrideString(&cfg.Environment, "CHEERVOX_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "CHEERVOX_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "CHEERVOX_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "CHEERVOX_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "CHEERVOX_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "CHEERVOX_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "CHEERVOX_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "CHEERVOX_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "CHEERVOX_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "CHEERVOX_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "CHEERVOX_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "CHEERVOX_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "CHEERVOX_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "CHEERVOX_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "CHEERVOX_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "CHEERVOX_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Twitch.Enabled, "CHEERVOX_TWITCH_ENABLED")
	overrideString(&cfg.Twitch.ClientID, "CHEERVOX_TWITCH_CLIENT_ID")
	overrideString(&cfg.Twitch.OAuthToken, "CHEERVOX_TWITCH_OAUTH_TOKEN")
	overrideString(&cfg.Twitch.BroadcasterID, "CHEERVOX_TWITCH_BROADCASTER_ID")
	overrideString(&cfg.Twitch.EventSubURL, "CHEERVOX_TWITCH_EVENTSUB_URL")
	overrideString(&cfg.Twitch.HelixURL, "CHEERVOX_TWITCH_HELIX_URL")
	overrideInt(&cfg.Twitch.KeepaliveTimeoutMS, "CHEERVOX_TWITCH_KEEPALIVE_TIMEOUT_MS")
	overrideInt(&cfg.Twitch.ReconnectDelayMS, "CHEERVOX_TWITCH_RECONNECT_DELAY_MS")
	overrideInt(&cfg.Filter.BitThreshold, "CHEERVOX_FILTER_BIT_THRESHOLD")
	overrideString(&cfg.Filter.Indicator, "CHEERVOX_FILTER_INDICATOR")
	overrideString(&cfg.Filter.BlacklistPath, "CHEERVOX_FILTER_BLACKLIST_PATH")
	overrideString(&cfg.Filter.PrivilegedUser, "CHEERVOX_FILTER_PRIVILEGED_USER")
	overrideStringSlice(&cfg.Filter.FreePassUsers, "CHEERVOX_FILTER_FREE_PASS_USERS")
	overrideInt(&cfg.Quota.BaseCap, "CHEERVOX_QUOTA_BASE_CAP")
	overrideInt(&cfg.Quota.ExtraCharsPerBit, "CHEERVOX_QUOTA_EXTRA_CHARS_PER_BIT")
	overrideString(&cfg.Synthesis.Provider, "CHEERVOX_SYNTHESIS_PROVIDER")
	overrideString(&cfg.Synthesis.APIKey, "CHEERVOX_SYNTHESIS_API_KEY")
	overrideString(&cfg.Synthesis.BaseURL, "CHEERVOX_SYNTHESIS_BASE_URL")
	overrideString(&cfg.Synthesis.ModelID, "CHEERVOX_SYNTHESIS_MODEL_ID")
	overrideFloat(&cfg.Synthesis.Stability, "CHEERVOX_SYNTHESIS_STABILITY")
	overrideFloat(&cfg.Synthesis.SimilarityBoost, "CHEERVOX_SYNTHESIS_SIMILARITY_BOOST")
	overrideInt(&cfg.Synthesis.SampleRate, "CHEERVOX_SYNTHESIS_SAMPLE_RATE")
	overrideString(&cfg.Synthesis.SaveDir, "CHEERVOX_SYNTHESIS_SAVE_DIR")
	overrideFloat(&cfg.Assembly.GainOffsetDB, "CHEERVOX_ASSEMBLY_GAIN_OFFSET_DB")
	overrideInt(&cfg.Assembly.SilenceMS, "CHEERVOX_ASSEMBLY_SILENCE_MS")
	overrideString(&cfg.Playback.Command, "CHEERVOX_PLAYBACK_COMMAND")
	overrideInt(&cfg.Playback.HardCapSeconds, "CHEERVOX_PLAYBACK_HARD_CAP_SECONDS")
	overrideInt(&cfg.Playback.PollIntervalMS, "CHEERVOX_PLAYBACK_POLL_INTERVAL_MS")
	overrideString(&cfg.AuditLog.Path, "CHEERVOX_AUDIT_LOG_PATH")
	overrideString(&cfg.AuditLog.RetentionMode, "CHEERVOX_AUDIT_LOG_RETENTION_MODE")
	overrideInt(&cfg.AuditLog.RetentionDays, "CHEERVOX_AUDIT_LOG_RETENTION_DAYS")
	overrideInt(&cfg.AuditLog.MaxTasks, "CHEERVOX_AUDIT_LOG_MAX_TASKS")
	overrideBool(&cfg.AuditLog.VacuumOnStart, "CHEERVOX_AUDIT_LOG_VACUUM_ON_START")
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
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Twitch.Enabled {
		if cfg.Twitch.ClientID == "" {
			return errors.New("twitch.client_id must be set when twitch is enabled")
		}
		if cfg.Twitch.OAuthToken == "" {
			return errors.New("twitch.oauth_token must be set when twitch is enabled")
		}
		if cfg.Twitch.BroadcasterID == "" {
			return errors.New("twitch.broadcaster_id must be set when twitch is enabled")
		}
		if cfg.Twitch.EventSubURL == "" {
			return errors.New("twitch.eventsub_url must not be empty")
		}
	}
	if cfg.Filter.BitThreshold < 0 {
		return errors.New("filter.bit_threshold must be >= 0")
	}
	if cfg.Filter.Indicator == "" {
		return errors.New("filter.indicator must not be empty")
	}
	if cfg.Quota.BaseCap <= 0 {
		return errors.New("quota.base_cap must be positive")
	}
	if cfg.Quota.ExtraCharsPerBit < 0 {
		return errors.New("quota.extra_chars_per_bit must be >= 0")
	}
	switch cfg.Synthesis.Provider {
	case "elevenlabs", "mock":
	default:
		return errors.New("synthesis.provider must be one of elevenlabs|mock")
	}
	if cfg.Synthesis.SampleRate <= 0 {
		return errors.New("synthesis.sample_rate must be positive")
	}
	if cfg.Synthesis.SaveDir == "" {
		return errors.New("synthesis.save_dir must not be empty")
	}
	for alias, speed := range cfg.Synthesis.SpeedTweaks {
		if speed <= 0 {
			return fmt.Errorf("synthesis.speed_tweaks[%s] must be positive", alias)
		}
	}
	if cfg.Assembly.SilenceMS < 0 {
		return errors.New("assembly.silence_ms must be >= 0")
	}
	if cfg.Playback.Command == "" {
		return errors.New("playback.command must not be empty")
	}
	if cfg.Playback.HardCapSeconds <= 0 {
		return errors.New("playback.hard_cap_seconds must be positive")
	}
	if cfg.Playback.PollIntervalMS <= 0 {
		return errors.New("playback.poll_interval_ms must be positive")
	}
	if cfg.AuditLog.Path == "" {
		return errors.New("audit_log.path must not be empty")
	}
	switch cfg.AuditLog.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("audit_log.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.AuditLog.RetentionDays < 0 {
		return errors.New("audit_log.retention_days must be >= 0")
	}
	if len(cfg.Voices) == 0 {
		return errors.New("voices must not be empty")
	}
	return nil
}
