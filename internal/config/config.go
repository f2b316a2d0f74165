package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config stores runtime configuration for the call engine.
type Config struct {
	Call     CallConfig     `toml:"call"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Deepgram DeepgramConfig `toml:"deepgram"`
	Speech   SpeechConfig   `toml:"speech"`
	Audio    AudioConfig    `toml:"audio"`
	Script   ScriptConfig   `toml:"script"`
	Store    StoreConfig    `toml:"store"`
}

type CallConfig struct {
	CenterType        string        `toml:"center_type"`
	HospitalID        string        `toml:"hospital_id"`
	InitiatingDelay   time.Duration `toml:"-"`
	ConnectingDelay   time.Duration `toml:"-"`
	RoutingDelay      time.Duration `toml:"-"`
	TurnTimeout       time.Duration `toml:"-"`
	InitiatingMS      int           `toml:"initiating_ms"`
	ConnectingMS      int           `toml:"connecting_ms"`
	RoutingMS         int           `toml:"routing_ms"`
	TurnTimeoutMS     int           `toml:"turn_timeout_ms"`
	ListenRestartMS   int           `toml:"listen_restart_ms"`
	ListenRestart     time.Duration `toml:"-"`
	UploadTimeoutMS   int           `toml:"upload_timeout_ms"`
	FinalizeTimeoutMS int           `toml:"finalize_timeout_ms"`
	UploadTimeout     time.Duration `toml:"-"`
	FinalizeTimeout   time.Duration `toml:"-"`
}

type DispatchConfig struct {
	BaseURL   string `toml:"base_url"`
	AuthToken string `toml:"auth_token"`
	TimeoutMS int    `toml:"timeout_ms"`
}

type DeepgramConfig struct {
	APIKey        string `toml:"api_key"`
	APIBaseURL    string `toml:"api_base"`
	Model         string `toml:"model"`
	Language      string `toml:"language"`
	SmartFormat   bool   `toml:"smart_format"`
	EndpointingMS int    `toml:"endpointing_ms"`
	NoSpeechMS    int    `toml:"no_speech_ms"`
}

type SpeechConfig struct {
	APIKey        string `toml:"api_key"`
	Endpoint      string `toml:"endpoint"`
	Model         string `toml:"model"`
	Voice         string `toml:"voice"`
	PlayerCommand string `toml:"player_command"`
}

type AudioConfig struct {
	RecorderCommand string `toml:"recorder_command"`
	InputFormat     string `toml:"input_format"`
	InputDevice     string `toml:"input_device"`
	SampleRate      int    `toml:"sample_rate"`
	Channels        int    `toml:"channels"`
	ChunkSize       int    `toml:"chunk_size"`
}

type ScriptConfig struct {
	Path   string `toml:"path"`
	Reload bool   `toml:"reload"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// Load resolves configuration from an optional TOML file layered under
// environment variables. A missing file is not an error; a malformed
// one is.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = strings.TrimSpace(os.Getenv("LIFELINE_CONFIG"))
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		Call: CallConfig{
			CenterType:        "main",
			InitiatingMS:      1500,
			ConnectingMS:      2000,
			RoutingMS:         3000,
			TurnTimeoutMS:     4000,
			ListenRestartMS:   400,
			UploadTimeoutMS:   10000,
			FinalizeTimeoutMS: 10000,
		},
		Dispatch: DispatchConfig{
			BaseURL:   "http://localhost:8080",
			TimeoutMS: 15000,
		},
		Deepgram: DeepgramConfig{
			APIBaseURL:    "https://api.deepgram.com/v1",
			Model:         "nova-2",
			SmartFormat:   true,
			EndpointingMS: 300,
			NoSpeechMS:    8000,
		},
		Speech: SpeechConfig{
			Endpoint:      "https://api.openai.com/v1/audio/speech",
			Model:         "tts-1",
			Voice:         "alloy",
			PlayerCommand: "ffplay -autoexit -nodisp -loglevel quiet -",
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      16000,
			Channels:        1,
			ChunkSize:       4096,
		},
		Script: ScriptConfig{
			Path:   "lines.toml",
			Reload: true,
		},
		Store: StoreConfig{
			Path: "lifeline.db",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Call.CenterType = envOrDefault("LIFELINE_CENTER_TYPE", cfg.Call.CenterType)
	cfg.Call.HospitalID = envOrDefault("LIFELINE_HOSPITAL_ID", cfg.Call.HospitalID)
	cfg.Call.InitiatingMS = envOrDefaultInt("LIFELINE_INITIATING_MS", cfg.Call.InitiatingMS)
	cfg.Call.ConnectingMS = envOrDefaultInt("LIFELINE_CONNECTING_MS", cfg.Call.ConnectingMS)
	cfg.Call.RoutingMS = envOrDefaultInt("LIFELINE_ROUTING_MS", cfg.Call.RoutingMS)
	cfg.Call.TurnTimeoutMS = envOrDefaultInt("LIFELINE_TURN_TIMEOUT_MS", cfg.Call.TurnTimeoutMS)
	cfg.Call.ListenRestartMS = envOrDefaultInt("LIFELINE_LISTEN_RESTART_MS", cfg.Call.ListenRestartMS)
	cfg.Call.UploadTimeoutMS = envOrDefaultInt("LIFELINE_UPLOAD_TIMEOUT_MS", cfg.Call.UploadTimeoutMS)
	cfg.Call.FinalizeTimeoutMS = envOrDefaultInt("LIFELINE_FINALIZE_TIMEOUT_MS", cfg.Call.FinalizeTimeoutMS)

	cfg.Dispatch.BaseURL = envOrDefault("LIFELINE_DISPATCH_URL", cfg.Dispatch.BaseURL)
	cfg.Dispatch.AuthToken = envOrDefault("LIFELINE_DISPATCH_TOKEN", cfg.Dispatch.AuthToken)
	cfg.Dispatch.TimeoutMS = envOrDefaultInt("LIFELINE_DISPATCH_TIMEOUT_MS", cfg.Dispatch.TimeoutMS)

	cfg.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", cfg.Deepgram.APIKey)
	cfg.Deepgram.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", cfg.Deepgram.APIBaseURL)
	cfg.Deepgram.Model = envOrDefault("DEEPGRAM_MODEL", cfg.Deepgram.Model)
	cfg.Deepgram.Language = envOrDefault("DEEPGRAM_LANGUAGE", cfg.Deepgram.Language)
	cfg.Deepgram.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", cfg.Deepgram.SmartFormat)
	cfg.Deepgram.EndpointingMS = envOrDefaultInt("DEEPGRAM_ENDPOINTING_MS", cfg.Deepgram.EndpointingMS)
	cfg.Deepgram.NoSpeechMS = envOrDefaultInt("LIFELINE_NO_SPEECH_MS", cfg.Deepgram.NoSpeechMS)

	cfg.Speech.APIKey = envOrDefault("OPENAI_API_KEY", cfg.Speech.APIKey)
	cfg.Speech.Endpoint = envOrDefault("LIFELINE_TTS_ENDPOINT", cfg.Speech.Endpoint)
	cfg.Speech.Model = envOrDefault("LIFELINE_TTS_MODEL", cfg.Speech.Model)
	cfg.Speech.Voice = envOrDefault("LIFELINE_TTS_VOICE", cfg.Speech.Voice)
	cfg.Speech.PlayerCommand = envOrDefault("LIFELINE_PLAYER_COMMAND", cfg.Speech.PlayerCommand)

	cfg.Audio.RecorderCommand = envOrDefault("LIFELINE_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("LIFELINE_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = envOrDefault("LIFELINE_AUDIO_INPUT_DEVICE", cfg.Audio.InputDevice)
	cfg.Audio.SampleRate = envOrDefaultInt("LIFELINE_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("LIFELINE_CHANNELS", cfg.Audio.Channels)
	cfg.Audio.ChunkSize = envOrDefaultInt("LIFELINE_AUDIO_CHUNK_SIZE", cfg.Audio.ChunkSize)

	cfg.Script.Path = envOrDefault("LIFELINE_SCRIPT_FILE", cfg.Script.Path)
	cfg.Script.Reload = envOrDefaultBool("LIFELINE_SCRIPT_RELOAD", cfg.Script.Reload)

	cfg.Store.Path = envOrDefault("LIFELINE_DB_FILE", cfg.Store.Path)
}

func normalize(cfg *Config) {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
	if cfg.Call.CenterType != "main" && cfg.Call.CenterType != "hospital" {
		cfg.Call.CenterType = "main"
	}

	cfg.Call.InitiatingDelay = millis(cfg.Call.InitiatingMS, 1500)
	cfg.Call.ConnectingDelay = millis(cfg.Call.ConnectingMS, 2000)
	cfg.Call.RoutingDelay = millis(cfg.Call.RoutingMS, 3000)
	cfg.Call.TurnTimeout = millis(cfg.Call.TurnTimeoutMS, 4000)
	cfg.Call.ListenRestart = millis(cfg.Call.ListenRestartMS, 400)
	cfg.Call.UploadTimeout = millis(cfg.Call.UploadTimeoutMS, 10000)
	cfg.Call.FinalizeTimeout = millis(cfg.Call.FinalizeTimeoutMS, 10000)
}

func millis(value int, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Millisecond
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
