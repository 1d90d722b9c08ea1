// Package conf loads orchestrator configuration from an optional YAML file
// with environment-variable overrides.
package conf

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// DatabaseDSN is the Postgres connection string. Empty disables
	// persistence (in-memory only, used by tests and rehearsals).
	DatabaseDSN string `yaml:"databaseDsn"`

	// AMQPURL enables mirroring outbound envelopes to a fanout exchange.
	// Empty disables the bridge.
	AMQPURL      string `yaml:"amqpUrl"`
	AMQPExchange string `yaml:"amqpExchange"`

	// AuthSecret signs and verifies device identification tokens.
	AuthSecret string `yaml:"authSecret"`

	// TokensPath points at the JSON token database.
	TokensPath string `yaml:"tokensPath"`

	Player  PlayerConfig  `yaml:"player"`
	Video   VideoConfig   `yaml:"video"`
	Offline OfflineConfig `yaml:"offline"`
	Session SessionConfig `yaml:"session"`
}

type PlayerConfig struct {
	// BaseURL of the external media player's HTTP interface. Empty means
	// playback is simulated.
	BaseURL string `yaml:"baseUrl"`

	HealthCheckInterval time.Duration `yaml:"healthCheckInterval"`
	RequestTimeout      time.Duration `yaml:"requestTimeout"`

	// Reconnect backoff grows linearly: ReconnectDelay * attempt, capped
	// at MaxReconnectDelay, for at most MaxReconnectAttempts.
	ReconnectDelay       time.Duration `yaml:"reconnectDelay"`
	MaxReconnectDelay    time.Duration `yaml:"maxReconnectDelay"`
	MaxReconnectAttempts int           `yaml:"maxReconnectAttempts"`
}

type VideoConfig struct {
	PollInterval    time.Duration `yaml:"pollInterval"`
	GracePolls      int           `yaml:"gracePolls"`
	DefaultDuration float64       `yaml:"defaultDuration"` // seconds
	MinDuration     float64       `yaml:"minDuration"`     // sanity threshold, seconds
	FallbackBuffer  time.Duration `yaml:"fallbackBuffer"`
	IdleLoopPath    string        `yaml:"idleLoopPath"`
}

type OfflineConfig struct {
	QueueCapacity  int           `yaml:"queueCapacity"`
	BatchRetention time.Duration `yaml:"batchRetention"`
	SweepInterval  time.Duration `yaml:"sweepInterval"`
}

type SessionConfig struct {
	MaxGMStations int `yaml:"maxGmStations"`

	// Duration after which session:overtime fires. Zero disables it.
	Duration time.Duration `yaml:"duration"`
}

func Default() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         "3000",
		LogLevel:     "info",
		AMQPExchange: "orchestrator.events",
		Player: PlayerConfig{
			HealthCheckInterval:  5 * time.Second,
			RequestTimeout:       2 * time.Second,
			ReconnectDelay:       time.Second,
			MaxReconnectDelay:    15 * time.Second,
			MaxReconnectAttempts: 10,
		},
		Video: VideoConfig{
			PollInterval:    time.Second,
			GracePolls:      3,
			DefaultDuration: 30,
			MinDuration:     1,
			FallbackBuffer:  10 * time.Second,
		},
		Offline: OfflineConfig{
			QueueCapacity:  100,
			BatchRetention: time.Hour,
			SweepInterval:  10 * time.Minute,
		},
		Session: SessionConfig{
			MaxGMStations: 5,
		},
	}
}

// Load reads the YAML file at path (if non-empty) over the defaults, then
// applies environment overrides.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parsing config file: %w", err)
		}
	}
	c.applyEnv()
	return c, nil
}

func (c *Config) applyEnv() {
	setString(&c.Host, "ORCHESTRATOR_HOST")
	setString(&c.Port, "ORCHESTRATOR_PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.DatabaseDSN, "DATABASE_DSN")
	setString(&c.AMQPURL, "AMQP_URL")
	setString(&c.AMQPExchange, "AMQP_EXCHANGE")
	setString(&c.AuthSecret, "AUTH_SECRET")
	setString(&c.TokensPath, "TOKENS_PATH")
	setString(&c.Player.BaseURL, "PLAYER_BASE_URL")
	setString(&c.Video.IdleLoopPath, "VIDEO_IDLE_LOOP")
	setInt(&c.Offline.QueueCapacity, "OFFLINE_QUEUE_CAPACITY")
	setInt(&c.Session.MaxGMStations, "MAX_GM_STATIONS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
