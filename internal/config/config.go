// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	AdminKeyHash   string `mapstructure:"ADMIN_KEY_HASH"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	Env            string `mapstructure:"APP_ENV"`

	// Commentary generator (Voicebox-style TTS sidecar); optional.
	CommentaryURL        string `mapstructure:"COMMENTARY_URL"`
	CommentaryTimeoutSec int    `mapstructure:"COMMENTARY_TIMEOUT_SEC"`

	// Tracing
	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
	TracingExporter string `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string `mapstructure:"OTLP_ENDPOINT"`

	// Radio engine tunables. Every timeout that governs the election and
	// game-loop protocol lives here rather than as a constant, so the two
	// station modes (2-song sticky box vs 3-song box) are configuration,
	// not forked code paths.
	HeartbeatIntervalSec int  `mapstructure:"RADIO_HEARTBEAT_SEC"`
	LeaderDeadSec        int  `mapstructure:"RADIO_LEADER_DEAD_SEC"`
	BoxSize              int  `mapstructure:"RADIO_BOX_SIZE"`
	StickyBox            bool `mapstructure:"RADIO_STICKY_BOX"`
	VotingWindowSec      int  `mapstructure:"RADIO_VOTING_WINDOW_SEC"`
	RoundDebounceSec     int  `mapstructure:"RADIO_ROUND_DEBOUNCE_SEC"`
	PostSongDelaySec     int  `mapstructure:"RADIO_POST_SONG_DELAY_SEC"`
	EmptyRetrySec        int  `mapstructure:"RADIO_EMPTY_RETRY_SEC"`
	ZombieMarginSec      int  `mapstructure:"RADIO_ZOMBIE_MARGIN_SEC"`
	DebutThreshold       int  `mapstructure:"RADIO_DEBUT_THRESHOLD"`
	DebutRetryHours      int  `mapstructure:"RADIO_DEBUT_RETRY_HOURS"`
	UserVoteWeight       int  `mapstructure:"RADIO_USER_VOTE_WEIGHT"`
	SimVoteIntervalSec   int  `mapstructure:"RADIO_SIM_VOTE_SEC"`
	AnnouncerPollSec     int  `mapstructure:"RADIO_ANNOUNCER_POLL_SEC"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// Initial read to get APP_ENV if set in base config.
	// The config file is optional; env vars alone are enough.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	viper.SetDefault("PORT", "8480")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("ADMIN_KEY_HASH", "")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "youniverse")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("COMMENTARY_URL", "")
	viper.SetDefault("COMMENTARY_TIMEOUT_SEC", 5)
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")

	viper.SetDefault("RADIO_HEARTBEAT_SEC", 2)
	viper.SetDefault("RADIO_LEADER_DEAD_SEC", 4)
	viper.SetDefault("RADIO_BOX_SIZE", 3)
	viper.SetDefault("RADIO_STICKY_BOX", false)
	viper.SetDefault("RADIO_VOTING_WINDOW_SEC", 30)
	viper.SetDefault("RADIO_ROUND_DEBOUNCE_SEC", 2)
	viper.SetDefault("RADIO_POST_SONG_DELAY_SEC", 5)
	viper.SetDefault("RADIO_EMPTY_RETRY_SEC", 5)
	viper.SetDefault("RADIO_ZOMBIE_MARGIN_SEC", 30)
	viper.SetDefault("RADIO_DEBUT_THRESHOLD", 5)
	viper.SetDefault("RADIO_DEBUT_RETRY_HOURS", 24)
	viper.SetDefault("RADIO_USER_VOTE_WEIGHT", 10)
	viper.SetDefault("RADIO_SIM_VOTE_SEC", 7)
	viper.SetDefault("RADIO_ANNOUNCER_POLL_SEC", 10)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and coherent.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.BoxSize < 2 {
		return errors.New("RADIO_BOX_SIZE must be at least 2")
	}
	// The dead threshold has to clear the heartbeat interval by a margin,
	// otherwise two nodes can both believe they are leader during normal
	// scheduling jitter.
	if c.LeaderDeadSec <= c.HeartbeatIntervalSec {
		return errors.New("RADIO_LEADER_DEAD_SEC must exceed RADIO_HEARTBEAT_SEC")
	}
	if c.VotingWindowSec <= 0 {
		return errors.New("RADIO_VOTING_WINDOW_SEC must be positive")
	}

	isProduction := c.Env == "production" || c.Env == "prod"
	if isProduction {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.AdminKeyHash == "" {
			return errors.New("ADMIN_KEY_HASH is required in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
	} else {
		if len(c.JWTSecret) < 32 {
			log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
		}
	}

	return nil
}

// HeartbeatInterval returns the leader heartbeat renewal period.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSec) * time.Second
}

// LeaderDeadThreshold returns how stale a heartbeat must be before the leader
// is considered dead and its seat claimable.
func (c *Config) LeaderDeadThreshold() time.Duration {
	return time.Duration(c.LeaderDeadSec) * time.Second
}

// VotingWindow returns the length of a box voting round.
func (c *Config) VotingWindow() time.Duration {
	return time.Duration(c.VotingWindowSec) * time.Second
}

// RoundDebounce returns the window in which duplicate round-start triggers collapse.
func (c *Config) RoundDebounce() time.Duration {
	return time.Duration(c.RoundDebounceSec) * time.Second
}

// PostSongDelay returns the breather between a song ending and the next round.
func (c *Config) PostSongDelay() time.Duration {
	return time.Duration(c.PostSongDelaySec) * time.Second
}

// EmptyRetry returns the delay before retrying a round start on an empty catalog.
func (c *Config) EmptyRetry() time.Duration {
	return time.Duration(c.EmptyRetrySec) * time.Second
}

// ZombieMargin returns the slack added to a song's duration before a persisted
// now-playing claim is treated as a missed transition. Generous on purpose:
// legacy rows carry placeholder durations.
func (c *Config) ZombieMargin() time.Duration {
	return time.Duration(c.ZombieMarginSec) * time.Second
}

// DebutRetryWindow returns how long a failed debut grants the uploader a
// priority second chance.
func (c *Config) DebutRetryWindow() time.Duration {
	return time.Duration(c.DebutRetryHours) * time.Hour
}

// CommentaryTimeout returns the budget for one commentary generation call.
func (c *Config) CommentaryTimeout() time.Duration {
	return time.Duration(c.CommentaryTimeoutSec) * time.Second
}

// SimVoteInterval returns the cadence of simulated background votes.
func (c *Config) SimVoteInterval() time.Duration {
	return time.Duration(c.SimVoteIntervalSec) * time.Second
}

// AnnouncerPoll returns the DJ announcer's polling period.
func (c *Config) AnnouncerPoll() time.Duration {
	return time.Duration(c.AnnouncerPollSec) * time.Second
}
