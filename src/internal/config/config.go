package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"handyhub-admin-console/src/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const defaultConfigFile = "src/internal/config/cfg.yml"

type Configuration struct {
	Logs     LogsSettings     `mapstructure:"logs"`
	App      Application      `mapstructure:"app"`
	Database Database         `mapstructure:"database"`
	Queue    QueueConfig      `mapstructure:"queue"`
	Redis    Redis            `mapstructure:"redis"`
	Security SecuritySettings `mapstructure:"security"`
	Server   ServerSettings   `mapstructure:"server"`
	Cache    CacheConfig      `mapstructure:"cache"`
	Guard    GuardConfig      `mapstructure:"guard"`
}

type LogsSettings struct {
	Level            string `mapstructure:"level"`
	Path             string `mapstructure:"log-path"`
	EnableJSONOutput bool   `mapstructure:"enable-json-output"`
}

type Application struct {
	Name     string `mapstructure:"name"`
	Timeout  int    `mapstructure:"timeout"`
	Version  string `mapstructure:"version"`
	HostLink string `mapstructure:"host-link"`
}

type Database struct {
	Url               string `mapstructure:"url"`
	DbName            string `mapstructure:"dbname"`
	SessionCollection string `mapstructure:"session-collection"`
	Timeout           int    `mapstructure:"timeout"`
}

type QueueConfig struct {
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

type RabbitMQConfig struct {
	Url          string `mapstructure:"url"`
	Exchange     string `mapstructure:"exchange"`
	ExchangeType string `mapstructure:"exchange-type"`
	RoutingKey   string `mapstructure:"routing-key"`
	Timeout      int    `mapstructure:"timeout"`
	Durable      bool   `mapstructure:"durable"`
	AutoDelete   bool   `mapstructure:"auto-delete"`
	Internal     bool   `mapstructure:"internal"`
	NoWait       bool   `mapstructure:"no-wait"`
}

type Redis struct {
	Url      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	Db       int    `mapstructure:"db"`
}

type SecuritySettings struct {
	JwtKey     string `mapstructure:"jwt-key"`
	CsrfHeader string `mapstructure:"csrf-header"`
}

type ServerSettings struct {
	Port         string `mapstructure:"port"`
	Mode         string `mapstructure:"mode"`
	ReadTimeout  int    `mapstructure:"read-timeout"`
	WriteTimeout int    `mapstructure:"write-timeout"`
	IdleTimeout  int    `mapstructure:"idle-timeout"`
}

type CacheConfig struct {
	SessionExpirationMinutes int `mapstructure:"session-expiration-minutes"`
}

// GuardConfig configures the client-side inactivity guard. Durations are
// milliseconds, matching the options the console front end recognises.
type GuardConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	InactivityTimeout int64  `mapstructure:"inactivity-timeout"`
	WarningTime       int64  `mapstructure:"warning-time"`
	HeartbeatInterval int64  `mapstructure:"heartbeat-interval"`
	Debug             bool   `mapstructure:"debug"`
	TickInterval      int64  `mapstructure:"tick-interval"`
	DebounceDelay     int64  `mapstructure:"debounce-delay"`
	FreshnessWindow   int64  `mapstructure:"freshness-window"`
	ReportTimeout     int64  `mapstructure:"report-timeout"`
	BackendUrl        string `mapstructure:"backend-url"`
	Token             string `mapstructure:"token"`
	CsrfToken         string `mapstructure:"csrf-token"`
	SignInPath        string `mapstructure:"sign-in-path"`
	Channel           string `mapstructure:"channel"`
	ChannelPrefix     string `mapstructure:"channel-prefix"`
}

// Contexts of one session share activity through redis, keyed by the
// session the guard token belongs to. With ChannelNone every context runs
// its own timer.
const (
	ChannelRedis = "redis"
	ChannelNone  = "none"
)

// DefaultGuardConfig returns the stock console settings: 15 minute idle
// timeout, 3 minute warning, 2 minute heartbeat.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Enabled:           true,
		InactivityTimeout: 900000,
		WarningTime:       180000,
		HeartbeatInterval: 120000,
		TickInterval:      1000,
		DebounceDelay:     500,
		FreshnessWindow:   5000,
		ReportTimeout:     3000,
		SignInPath:        "/sign-in",
		Channel:           ChannelRedis,
		ChannelPrefix:     "console",
	}
}

func (g GuardConfig) InactivityTimeoutDuration() time.Duration {
	return millis(g.InactivityTimeout)
}

func (g GuardConfig) WarningDuration() time.Duration {
	return millis(g.WarningTime)
}

func (g GuardConfig) HeartbeatDuration() time.Duration {
	return millis(g.HeartbeatInterval)
}

func (g GuardConfig) TickDuration() time.Duration {
	return millis(g.TickInterval)
}

func (g GuardConfig) DebounceDuration() time.Duration {
	return millis(g.DebounceDelay)
}

func (g GuardConfig) FreshnessDuration() time.Duration {
	return millis(g.FreshnessWindow)
}

func (g GuardConfig) ReportTimeoutDuration() time.Duration {
	return millis(g.ReportTimeout)
}

// Validate rejects settings the guard cannot run with. A disabled guard is
// always valid.
func (g GuardConfig) Validate() error {
	if !g.Enabled {
		return nil
	}
	if g.InactivityTimeout <= 0 {
		return fmt.Errorf("%w: inactivity-timeout must be positive", models.ErrInvalidGuardConfig)
	}
	if g.WarningTime <= 0 || g.WarningTime >= g.InactivityTimeout {
		return fmt.Errorf("%w: warning-time must be positive and below inactivity-timeout", models.ErrInvalidGuardConfig)
	}
	if g.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat-interval must be positive", models.ErrInvalidGuardConfig)
	}
	if g.TickInterval <= 0 || g.DebounceDelay <= 0 || g.FreshnessWindow <= 0 {
		return fmt.Errorf("%w: tick-interval, debounce-delay and freshness-window must be positive", models.ErrInvalidGuardConfig)
	}
	switch g.Channel {
	case ChannelRedis, ChannelNone:
	default:
		return fmt.Errorf("%w: unknown channel %q", models.ErrInvalidGuardConfig, g.Channel)
	}
	return nil
}

func millis(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Load reads the yml config at path (the bundled file when empty) and applies
// environment overrides.
func Load(path string) *Configuration {
	cfg := read(path)
	logrus.Info("Configuration loaded")

	// Override with environment variables
	mongoUri := os.Getenv("MONGODB_URL")
	if mongoUri != "" {
		cfg.Database.Url = mongoUri
	}

	dbName := os.Getenv("DB_NAME")
	if dbName != "" {
		cfg.Database.DbName = dbName
	}

	redisUrl := os.Getenv("REDIS_URL")
	if redisUrl != "" {
		cfg.Redis.Url = redisUrl
	}

	redisDB := os.Getenv("REDIS_DB")
	if redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			cfg.Redis.Db = db
		}
	}

	rabbitmqUrl := os.Getenv("RABBITMQ_URL")
	if rabbitmqUrl != "" {
		cfg.Queue.RabbitMQ.Url = rabbitmqUrl
	}

	jwtKey := os.Getenv("JWT_KEY")
	if jwtKey != "" {
		cfg.Security.JwtKey = jwtKey
	}

	backendUrl := os.Getenv("CONSOLE_BACKEND_URL")
	if backendUrl != "" {
		cfg.Guard.BackendUrl = backendUrl
	}

	token := os.Getenv("CONSOLE_TOKEN")
	if token != "" {
		cfg.Guard.Token = token
	}

	return cfg
}

func read(path string) *Configuration {
	if path == "" {
		path = defaultConfigFile
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetConfigType("yml")
	setDefaults(v)

	var config Configuration

	err := v.ReadInConfig()
	if err != nil {
		logrus.Panicf("Error reading config file, %s", err)
	}

	err = v.Unmarshal(&config)
	if err != nil {
		logrus.Panicf("Error unmarshalling config file, %s", err)
	}

	return &config
}

func setDefaults(v *viper.Viper) {
	d := DefaultGuardConfig()
	v.SetDefault("guard.enabled", d.Enabled)
	v.SetDefault("guard.inactivity-timeout", d.InactivityTimeout)
	v.SetDefault("guard.warning-time", d.WarningTime)
	v.SetDefault("guard.heartbeat-interval", d.HeartbeatInterval)
	v.SetDefault("guard.tick-interval", d.TickInterval)
	v.SetDefault("guard.debounce-delay", d.DebounceDelay)
	v.SetDefault("guard.freshness-window", d.FreshnessWindow)
	v.SetDefault("guard.report-timeout", d.ReportTimeout)
	v.SetDefault("guard.sign-in-path", d.SignInPath)
	v.SetDefault("guard.channel", d.Channel)
	v.SetDefault("guard.channel-prefix", d.ChannelPrefix)
	v.SetDefault("security.csrf-header", "X-CSRF-Token")
	v.SetDefault("cache.session-expiration-minutes", 30)
}
