package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"stratsim/internal/game"
)

// Duration wraps time.Duration so it can be read from TOML strings and env
// values such as "30s" or "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	LogLevel string `toml:"log_level" env:"STRATSIM_LOG_LEVEL"`

	Server   ServerConfig   `toml:"server"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Redis    RedisConfig    `toml:"redis"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Worker   WorkerConfig   `toml:"worker"`
	Game     GameConfig     `toml:"game"`
	Tuning   game.Tuning    `toml:"tuning"`
}

type ServerConfig struct {
	Addr           string   `toml:"addr" env:"STRATSIM_SERVER_ADDR"`
	ReadTimeout    Duration `toml:"read_timeout" env:"STRATSIM_SERVER_READ_TIMEOUT"`
	WriteTimeout   Duration `toml:"write_timeout" env:"STRATSIM_SERVER_WRITE_TIMEOUT"`
	RequestTimeout Duration `toml:"request_timeout" env:"STRATSIM_SERVER_REQUEST_TIMEOUT"`
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
)

type StoreConfig struct {
	Kind string `toml:"kind" env:"STRATSIM_STORE_KIND"`
	// Lock selects the per-game lock: "local" or "redis".
	Lock string `toml:"lock" env:"STRATSIM_STORE_LOCK"`
}

type PostgresConfig struct {
	URL      string `toml:"url" env:"DATABASE_URL"`
	MaxConns int32  `toml:"max_conns" env:"STRATSIM_POSTGRES_MAX_CONNS"`
	MinConns int32  `toml:"min_conns" env:"STRATSIM_POSTGRES_MIN_CONNS"`
}

type SQLiteConfig struct {
	Path string `toml:"path" env:"STRATSIM_SQLITE_PATH"`
}

type RedisConfig struct {
	Addr       string   `toml:"addr" env:"STRATSIM_REDIS_ADDR"`
	Password   string   `toml:"password" env:"STRATSIM_REDIS_PASSWORD"`
	DB         int      `toml:"db" env:"STRATSIM_REDIS_DB"`
	PoolSize   int      `toml:"pool_size" env:"STRATSIM_REDIS_POOL_SIZE"`
	MaxRetries int      `toml:"max_retries" env:"STRATSIM_REDIS_MAX_RETRIES"`
	KeyPrefix  string   `toml:"key_prefix" env:"STRATSIM_REDIS_KEY_PREFIX"`
	LockTTL    Duration `toml:"lock_ttl" env:"STRATSIM_REDIS_LOCK_TTL"`
}

// ArchiveConfig points at an S3-compatible bucket that receives one object
// per resolved round.
type ArchiveConfig struct {
	Enabled        bool   `toml:"enabled" env:"STRATSIM_ARCHIVE_ENABLED"`
	Endpoint       string `toml:"endpoint" env:"STRATSIM_ARCHIVE_ENDPOINT"`
	Region         string `toml:"region" env:"STRATSIM_ARCHIVE_REGION"`
	Bucket         string `toml:"bucket" env:"STRATSIM_ARCHIVE_BUCKET"`
	AccessKey      string `toml:"access_key" env:"STRATSIM_ARCHIVE_ACCESS_KEY"`
	SecretKey      string `toml:"secret_key" env:"STRATSIM_ARCHIVE_SECRET_KEY"`
	UseSSL         bool   `toml:"use_ssl" env:"STRATSIM_ARCHIVE_USE_SSL"`
	ForcePathStyle bool   `toml:"force_path_style" env:"STRATSIM_ARCHIVE_FORCE_PATH_STYLE"`
	Prefix         string `toml:"prefix" env:"STRATSIM_ARCHIVE_PREFIX"`
}

type NotifyConfig struct {
	Enabled   bool   `toml:"enabled" env:"STRATSIM_NOTIFY_ENABLED"`
	BotToken  string `toml:"bot_token" env:"STRATSIM_DISCORD_BOT_TOKEN"`
	ChannelID string `toml:"channel_id" env:"STRATSIM_DISCORD_CHANNEL_ID"`
}

type WorkerConfig struct {
	Interval      Duration `toml:"interval" env:"STRATSIM_WORKER_INTERVAL"`
	RoundDeadline Duration `toml:"round_deadline" env:"STRATSIM_WORKER_ROUND_DEADLINE"`
	Parallelism   int      `toml:"parallelism" env:"STRATSIM_WORKER_PARALLELISM"`
}

type GameConfig struct {
	// CatalogPath overrides the embedded event catalog when set.
	CatalogPath string `toml:"catalog_path" env:"STRATSIM_CATALOG_PATH"`
}

func Defaults() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    Duration{15 * time.Second},
			WriteTimeout:   Duration{30 * time.Second},
			RequestTimeout: Duration{20 * time.Second},
		},
		Store: StoreConfig{Kind: StoreMemory, Lock: "local"},
		Postgres: PostgresConfig{
			MaxConns: 20,
			MinConns: 2,
		},
		SQLite: SQLiteConfig{Path: "stratsim.db"},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "stratsim:",
			LockTTL:    Duration{30 * time.Second},
		},
		Archive: ArchiveConfig{
			Region: "us-east-1",
			UseSSL: true,
			Prefix: "games",
		},
		Worker: WorkerConfig{
			Interval:    Duration{30 * time.Second},
			Parallelism: 4,
		},
		Tuning: game.DefaultTuning(),
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Kind {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(c.Postgres.URL) == "" {
			errs = append(errs, errors.New("postgres.url is required for the postgres store"))
		}
		if c.Postgres.MinConns < 0 || c.Postgres.MaxConns < 1 || c.Postgres.MinConns > c.Postgres.MaxConns {
			errs = append(errs, fmt.Errorf("postgres pool bounds %d..%d are invalid", c.Postgres.MinConns, c.Postgres.MaxConns))
		}
	case StoreSQLite:
		if strings.TrimSpace(c.SQLite.Path) == "" {
			errs = append(errs, errors.New("sqlite.path is required for the sqlite store"))
		}
	case StoreRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.kind %q is not one of memory, postgres, sqlite, redis", c.Store.Kind))
	}
	switch c.Store.Lock {
	case "local":
	case "redis":
		if strings.TrimSpace(c.Redis.Addr) == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis lock"))
		}
		if c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, errors.New("redis.lock_ttl must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.lock %q is not one of local, redis", c.Store.Lock))
	}
	if c.Archive.Enabled && strings.TrimSpace(c.Archive.Bucket) == "" {
		errs = append(errs, errors.New("archive.bucket is required when the archive is enabled"))
	}
	if c.Notify.Enabled && (c.Notify.BotToken == "" || c.Notify.ChannelID == "") {
		errs = append(errs, errors.New("notify.bot_token and notify.channel_id are required when notifications are enabled"))
	}
	if c.Worker.Interval.Duration <= 0 {
		errs = append(errs, errors.New("worker.interval must be positive"))
	}
	if c.Worker.RoundDeadline.Duration < 0 {
		errs = append(errs, errors.New("worker.round_deadline must not be negative"))
	}
	if c.Worker.Parallelism < 1 {
		errs = append(errs, errors.New("worker.parallelism must be at least 1"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := c.Tuning.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CLIConfig holds what the stratsim command line needs to reach an API.
type CLIConfig struct {
	APIBaseURL string
	Timeout    time.Duration
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("STRATSIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Timeout:    envDurationDefault("STRATSIM_HTTP_TIMEOUT", 15*time.Second),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// portAddr honours the PORT variable set by most container platforms.
func portAddr(addr string) string {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		return addr
	}
	if _, err := strconv.Atoi(port); err != nil {
		return addr
	}
	return ":" + port
}
