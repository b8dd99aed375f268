package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken  string         `yaml:"discord_token"`
	DatabasePath  string         `yaml:"database_path"`
	LogLevel      string         `yaml:"log_level"`
	CommandPrefix string         `yaml:"command_prefix"`
	RetentionDays int            `yaml:"retention_days"`
	Health        HealthConfig   `yaml:"health"`
	Thresholds    Thresholds     `yaml:"thresholds"`
	Announce      AnnounceConfig `yaml:"announce"`
	Bump          BumpConfig     `yaml:"bump"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type Thresholds struct {
	NukeWindowSeconds int `yaml:"nuke_window_seconds"`
	NukeDeletions     int `yaml:"nuke_deletions"`
	RaidWindowSeconds int `yaml:"raid_window_seconds"`
	RaidJoins         int `yaml:"raid_joins"`
	MentionLimit      int `yaml:"mention_limit"`
	RepeatLimit       int `yaml:"repeat_limit"`
	HistoryLookback   int `yaml:"history_lookback"`
	TimeoutMinutes    int `yaml:"timeout_minutes"`
}

type AnnounceConfig struct {
	Hour int `yaml:"hour"`
}

type BumpConfig struct {
	ChannelID     string `yaml:"channel_id"`
	ApplicationID string `yaml:"application_id"`
	CommandName   string `yaml:"command_name"`
	IntervalHours int    `yaml:"interval_hours"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath:  "/data/bastion.db",
		LogLevel:      "info",
		CommandPrefix: "!",
		RetentionDays: 14,
		Health:        HealthConfig{Enabled: false, Addr: ":8080"},
		Thresholds: Thresholds{
			NukeWindowSeconds: 60,
			NukeDeletions:     2,
			RaidWindowSeconds: 10,
			RaidJoins:         5,
			MentionLimit:      5,
			RepeatLimit:       5,
			HistoryLookback:   10,
			TimeoutMinutes:    10,
		},
		Announce: AnnounceConfig{Hour: 8},
		Bump:     BumpConfig{CommandName: "bump", IntervalHours: 2},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.CommandPrefix = envString("COMMAND_PREFIX", cfg.CommandPrefix)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Thresholds.NukeWindowSeconds = envInt("NUKE_WINDOW_SECONDS", cfg.Thresholds.NukeWindowSeconds)
	cfg.Thresholds.NukeDeletions = envInt("NUKE_DELETIONS", cfg.Thresholds.NukeDeletions)
	cfg.Thresholds.RaidWindowSeconds = envInt("RAID_WINDOW_SECONDS", cfg.Thresholds.RaidWindowSeconds)
	cfg.Thresholds.RaidJoins = envInt("RAID_JOINS", cfg.Thresholds.RaidJoins)
	cfg.Thresholds.MentionLimit = envInt("MENTION_LIMIT", cfg.Thresholds.MentionLimit)
	cfg.Thresholds.RepeatLimit = envInt("REPEAT_LIMIT", cfg.Thresholds.RepeatLimit)
	cfg.Thresholds.HistoryLookback = envInt("HISTORY_LOOKBACK", cfg.Thresholds.HistoryLookback)
	cfg.Thresholds.TimeoutMinutes = envInt("TIMEOUT_MINUTES", cfg.Thresholds.TimeoutMinutes)
	cfg.Announce.Hour = envInt("ANNOUNCE_HOUR", cfg.Announce.Hour)
	cfg.Bump.ChannelID = envString("BUMP_CHANNEL_ID", cfg.Bump.ChannelID)
	cfg.Bump.ApplicationID = envString("BUMP_APPLICATION_ID", cfg.Bump.ApplicationID)
	cfg.Bump.CommandName = envString("BUMP_COMMAND_NAME", cfg.Bump.CommandName)
	cfg.Bump.IntervalHours = envInt("BUMP_INTERVAL_HOURS", cfg.Bump.IntervalHours)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
