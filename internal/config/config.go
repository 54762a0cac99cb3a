package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/wes-io-live/roomchat/pkg/config"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/database"
	pkglog "github.com/weiawesome/wes-io-live/roomchat/pkg/log"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/pubsub"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/storage"
)

type Config struct {
	Server     ServerConfig
	WebSocket  WebSocketConfig `mapstructure:"websocket"`
	Auth       AuthConfig
	Store      StoreConfig
	Cache      CacheConfig
	Redis      RedisConfig
	Attachment AttachmentConfig
	Storage    storage.Config
	Events     pubsub.Config
	Log        pkglog.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type StoreConfig struct {
	Driver      string // gorm, cassandra
	IDGenerator string `mapstructure:"id_generator"` // ulid, ksuid, nanoid, cuid2, uuid
	Database    database.Config
	Cassandra   CassandraConfig
}

type CassandraConfig struct {
	Hosts       []string
	Keyspace    string
	Consistency string
	Timeout     time.Duration
}

type CacheConfig struct {
	Driver       string // redis, memory
	Prefix       string
	TTL          time.Duration
	PresenceTTL  time.Duration `mapstructure:"presence_ttl"`
	HistoryLimit int           `mapstructure:"history_limit"`
	MaxRooms     int           `mapstructure:"max_rooms"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type AttachmentConfig struct {
	KeyPrefix     string        `mapstructure:"key_prefix"`
	MaxUploadSize int64         `mapstructure:"max_upload_size"`
	AllowedTypes  []string      `mapstructure:"allowed_types"`
	URLExpiry     time.Duration `mapstructure:"url_expiry"`
}

// Load reads ./config/config.yaml (optional) and the environment.
func Load() (*Config, error) {
	return LoadFrom("./config")
}

// LoadFrom is Load with an explicit config directory.
func LoadFrom(path string) (*Config, error) {
	v, err := pkgconfig.Load(path, "config")
	if err != nil {
		return nil, err
	}

	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Cache.TTL = parseDuration(v, "cache.ttl", 300*time.Second)
	cfg.Cache.PresenceTTL = parseDuration(v, "cache.presence_ttl", time.Hour)

	if cfg.Log.ServiceName == "" {
		cfg.Log.ServiceName = "roomchat"
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.send_buffer", 256)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("store.driver", "gorm")
	v.SetDefault("store.id_generator", "ulid")
	v.SetDefault("store.database.driver", "sqlite")
	v.SetDefault("store.database.file_path", "roomchat.db")
	v.SetDefault("store.database.host", "localhost")
	v.SetDefault("store.database.port", 5432)
	v.SetDefault("store.database.sslmode", "disable")
	v.SetDefault("store.database.max_idle_conns", 5)
	v.SetDefault("store.database.max_open_conns", 20)
	v.SetDefault("store.database.conn_max_lifetime", 30)
	v.SetDefault("store.cassandra.hosts", []string{"localhost:9042"})
	v.SetDefault("store.cassandra.keyspace", "roomchat")
	v.SetDefault("store.cassandra.consistency", "LOCAL_QUORUM")
	v.SetDefault("store.cassandra.timeout", "5s")

	v.SetDefault("cache.driver", "redis")
	v.SetDefault("cache.prefix", "chat")
	v.SetDefault("cache.ttl", "300s")
	v.SetDefault("cache.presence_ttl", "1h")
	v.SetDefault("cache.history_limit", 50)
	v.SetDefault("cache.max_rooms", 10000)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("attachment.key_prefix", "chats")
	v.SetDefault("attachment.max_upload_size", 10<<20)
	v.SetDefault("attachment.allowed_types", []string{
		"image/jpeg", "image/png", "image/gif",
		"video/mp4", "video/quicktime",
		"application/pdf", "text/plain",
	})
	v.SetDefault("attachment.url_expiry", "24h")

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local.base_path", "./data/attachments")
	v.SetDefault("storage.local.public_prefix", "/attachments")
	v.SetDefault("storage.s3.region", "us-east-1")

	v.SetDefault("events.driver", "none")
	v.SetDefault("events.kafka.brokers", "localhost:9092")
	v.SetDefault("events.kafka.partitions", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("auth.issuer", "JWT_ISSUER")
	_ = v.BindEnv("store.driver", "STORE_DRIVER")
	_ = v.BindEnv("store.id_generator", "STORE_ID_GENERATOR")
	_ = v.BindEnv("store.database.driver", "DB_DRIVER")
	_ = v.BindEnv("store.database.host", "DB_HOST")
	_ = v.BindEnv("store.database.port", "DB_PORT")
	_ = v.BindEnv("store.database.user", "DB_USER")
	_ = v.BindEnv("store.database.password", "DB_PASSWORD")
	_ = v.BindEnv("store.database.dbname", "DB_NAME")
	_ = v.BindEnv("store.cassandra.hosts", "CASSANDRA_HOSTS")
	_ = v.BindEnv("cache.driver", "CACHE_DRIVER")
	_ = v.BindEnv("redis.address", "REDIS_ADDRESS")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("storage.driver", "STORAGE_DRIVER")
	_ = v.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("storage.s3.bucket", "S3_BUCKET")
	_ = v.BindEnv("storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	_ = v.BindEnv("events.driver", "EVENTS_DRIVER")
	_ = v.BindEnv("events.kafka.brokers", "KAFKA_BROKERS")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
