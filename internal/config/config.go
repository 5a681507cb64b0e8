package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Session       SessionConfig       `yaml:"session"`
	Sweeper       SweeperConfig       `yaml:"sweeper"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Resolver      ResolverConfig      `yaml:"resolver"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// SessionConfig contains segment recorder and session lifecycle parameters.
// Durations are in seconds.
type SessionConfig struct {
	StagingDir   string  `yaml:"staging_dir"`
	BaseDuration float64 `yaml:"base_duration"` // minimum segment length
	Grace        float64 `yaml:"grace"`         // extension past ongoing speech
	SilenceHold  float64 `yaml:"silence_hold"`  // silence required before a stop
	TickInterval float64 `yaml:"tick_interval"`
	Backoff      float64 `yaml:"backoff"` // after a failed capture cycle
	Settle       float64 `yaml:"settle"`  // between stop and restart
}

// SweeperConfig contains staging sweep parameters. Durations are in seconds.
type SweeperConfig struct {
	Interval  float64 `yaml:"interval"`
	SettleAge float64 `yaml:"settle_age"` // minimum file age before reading
	MinBytes  int64   `yaml:"min_bytes"`  // size floor for silence captures
}

// AudioConfig contains capture audio parameters.
type AudioConfig struct {
	SampleRate  int `yaml:"sample_rate"`
	FrameBuffer int `yaml:"frame_buffer"` // buffered frames between provider and capture
}

// TranscriptionConfig contains transcription engine parameters.
type TranscriptionConfig struct {
	Endpoint                  string  `yaml:"endpoint"`
	APIKey                    string  `yaml:"api_key"`
	Timeout                   int     `yaml:"timeout"` // seconds
	Language                  string  `yaml:"language"`
	Prompt                    string  `yaml:"prompt"`
	Temperature               float32 `yaml:"temperature"`
	CompressionRatioThreshold float32 `yaml:"compression_ratio_threshold"`
	NoSpeechThreshold         float32 `yaml:"no_speech_threshold"`
}

// ResolverConfig contains participant name resolution parameters.
type ResolverConfig struct {
	CacheTTL int `yaml:"cache_ttl"` // seconds; 0 caches forever
}

// HTTPConfig contains monitoring HTTP API configuration.
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration defaults. The timing values are the
// empirically tuned heuristics of the pipeline; they are defaults, not
// invariants.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			StagingDir:   "recordings",
			BaseDuration: 20,
			Grace:        2,
			SilenceHold:  1,
			TickInterval: 0.1,
			Backoff:      0.5,
			Settle:       1,
		},
		Sweeper: SweeperConfig{
			Interval:  0.5,
			SettleAge: 0.75,
			MinBytes:  1024,
		},
		Audio: AudioConfig{
			SampleRate:  48000,
			FrameBuffer: 256,
		},
		Transcription: TranscriptionConfig{
			Timeout:                   30,
			Language:                  "en",
			Prompt:                    "Speak naturally.",
			Temperature:               0,
			CompressionRatioThreshold: 1.5,
			NoSpeechThreshold:         0.6,
		},
		Resolver: ResolverConfig{
			CacheTTL: 0,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of the complete configuration.
func (c *Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Sweeper.Validate(); err != nil {
		return fmt.Errorf("sweeper config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Resolver.Validate(); err != nil {
		return fmt.Errorf("resolver config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates session configuration.
func (s *SessionConfig) Validate() error {
	if s.StagingDir == "" {
		return fmt.Errorf("staging_dir cannot be empty")
	}

	if s.BaseDuration <= 0 {
		return fmt.Errorf("base_duration must be positive, got %f", s.BaseDuration)
	}

	if s.Grace < 0 {
		return fmt.Errorf("grace cannot be negative, got %f", s.Grace)
	}

	if s.SilenceHold <= 0 {
		return fmt.Errorf("silence_hold must be positive, got %f", s.SilenceHold)
	}

	if s.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %f", s.TickInterval)
	}

	if s.TickInterval >= s.BaseDuration {
		return fmt.Errorf("tick_interval (%f) must be smaller than base_duration (%f)",
			s.TickInterval, s.BaseDuration)
	}

	if s.Backoff <= 0 {
		return fmt.Errorf("backoff must be positive, got %f", s.Backoff)
	}

	if s.Settle <= 0 {
		return fmt.Errorf("settle must be positive, got %f", s.Settle)
	}

	return nil
}

// Validate validates sweeper configuration.
func (s *SweeperConfig) Validate() error {
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %f", s.Interval)
	}

	if s.SettleAge <= 0 {
		return fmt.Errorf("settle_age must be positive, got %f", s.SettleAge)
	}

	if s.MinBytes < 0 {
		return fmt.Errorf("min_bytes cannot be negative, got %d", s.MinBytes)
	}

	return nil
}

// Validate validates audio configuration.
func (a *AudioConfig) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}

	if a.FrameBuffer < 1 {
		return fmt.Errorf("frame_buffer must be at least 1, got %d", a.FrameBuffer)
	}

	return nil
}

// Validate validates transcription configuration.
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.Temperature < 0 || t.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", t.Temperature)
	}

	if t.NoSpeechThreshold < 0 || t.NoSpeechThreshold > 1 {
		return fmt.Errorf("no_speech_threshold must be between 0 and 1, got %f", t.NoSpeechThreshold)
	}

	if t.CompressionRatioThreshold <= 0 {
		return fmt.Errorf("compression_ratio_threshold must be positive, got %f", t.CompressionRatioThreshold)
	}

	return nil
}

// Validate validates resolver configuration.
func (r *ResolverConfig) Validate() error {
	if r.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl cannot be negative, got %d", r.CacheTTL)
	}

	return nil
}

// Validate validates HTTP configuration.
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// GetBaseDuration returns the base segment duration as a time.Duration.
func (s *SessionConfig) GetBaseDuration() time.Duration { return seconds(s.BaseDuration) }

// GetGrace returns the speech grace period as a time.Duration.
func (s *SessionConfig) GetGrace() time.Duration { return seconds(s.Grace) }

// GetSilenceHold returns the silence hold as a time.Duration.
func (s *SessionConfig) GetSilenceHold() time.Duration { return seconds(s.SilenceHold) }

// GetTickInterval returns the recorder tick interval as a time.Duration.
func (s *SessionConfig) GetTickInterval() time.Duration { return seconds(s.TickInterval) }

// GetBackoff returns the cycle failure backoff as a time.Duration.
func (s *SessionConfig) GetBackoff() time.Duration { return seconds(s.Backoff) }

// GetSettle returns the restart settle period as a time.Duration.
func (s *SessionConfig) GetSettle() time.Duration { return seconds(s.Settle) }

// GetInterval returns the sweep interval as a time.Duration.
func (s *SweeperConfig) GetInterval() time.Duration { return seconds(s.Interval) }

// GetSettleAge returns the file settle age as a time.Duration.
func (s *SweeperConfig) GetSettleAge() time.Duration { return seconds(s.SettleAge) }

// GetTimeout returns the transcription timeout as a time.Duration.
func (t *TranscriptionConfig) GetTimeout() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetCacheTTL returns the resolver cache TTL as a time.Duration.
func (r *ResolverConfig) GetCacheTTL() time.Duration {
	return time.Duration(r.CacheTTL) * time.Second
}
