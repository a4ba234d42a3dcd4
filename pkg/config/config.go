package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/parlo-app/parlo/pkg/errorsx"
	"github.com/spf13/viper"
)

// VendorConfig selects a provider implementation plus free-form settings
// decoded per vendor (api_key, model, base_url and friends).
type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type SpeechConfig struct {
	TTS        VendorConfig `mapstructure:"tts"`
	Recognizer VendorConfig `mapstructure:"recognizer"`
	VoiceID    string       `mapstructure:"voice_id"`
}

type LiveSettings struct {
	Model        string `mapstructure:"model"`
	BlockSize    int    `mapstructure:"block_size"`
	RealtimeURL  string `mapstructure:"realtime_url"`
	RetryDelayMS int    `mapstructure:"retry_delay_ms"`
}

type Persona struct {
	Name        string `mapstructure:"name"`
	Age         string `mapstructure:"age"`
	Gender      string `mapstructure:"gender"`
	Nationality string `mapstructure:"nationality"`
	Profession  string `mapstructure:"profession"`
	Personality string `mapstructure:"personality"`
	Interests   string `mapstructure:"interests"`
}

type Topic struct {
	Title  string `mapstructure:"title"`
	Prompt string `mapstructure:"prompt"`
	Role   string `mapstructure:"role"`
}

type HistoryConfig struct {
	Path      string `mapstructure:"path"`
	RedactPII bool   `mapstructure:"redact_pii"`
}

type Config struct {
	Environment string        `mapstructure:"environment"`
	LogLevel    string        `mapstructure:"log_level"`
	LogFormat   string        `mapstructure:"log_format"`
	Language    string        `mapstructure:"language"`
	Chat        VendorConfig  `mapstructure:"chat"`
	Speech      SpeechConfig  `mapstructure:"speech"`
	Live        LiveSettings  `mapstructure:"live"`
	Persona     Persona       `mapstructure:"persona"`
	Topic       Topic         `mapstructure:"topic"`
	History     HistoryConfig `mapstructure:"history"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("language", "zh")
	v.SetDefault("live.block_size", 4096)
	v.SetDefault("live.retry_delay_ms", 2000)
	v.SetDefault("speech.tts.provider", "local")
	v.SetDefault("history.path", "")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Chat.Provider) == "" {
		return fmt.Errorf("chat.provider is required")
	}
	if key, _ := c.Chat.Settings["api_key"].(string); strings.TrimSpace(key) == "" {
		return errorsx.New(errorsx.ReasonMissingCredential, "chat.settings.api_key is required")
	}
	if strings.TrimSpace(c.Persona.Name) == "" {
		return fmt.Errorf("persona.name is required")
	}
	return nil
}

// expandEnv resolves ${VAR} references so keys can live outside the file.
func expandEnv(c *Config) {
	expandSettings(c.Chat.Settings)
	expandSettings(c.Speech.TTS.Settings)
	expandSettings(c.Speech.Recognizer.Settings)
	c.Live.RealtimeURL = os.ExpandEnv(c.Live.RealtimeURL)
	c.History.Path = os.ExpandEnv(c.History.Path)
}

func expandSettings(settings map[string]any) {
	for k, v := range settings {
		if s, ok := v.(string); ok {
			settings[k] = os.ExpandEnv(s)
		}
	}
}
