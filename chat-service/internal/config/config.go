package config

import (
	"time"

	"github.com/spf13/viper"
	pkgconfig "github.com/weiawesome/wes-io-chat/pkg/config"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Broadcast BroadcastConfig
	Presence  PresenceConfig
	Kafka     KafkaConfig
	JWT       JWTConfig
	Chat      ChatConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	InstanceID      string        `mapstructure:"instance_id"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

// RedisConfig is shared by the user cache, the broadcast relay and the
// presence counter. An empty address disables every Redis-backed component.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CacheConfig struct {
	Enabled bool
	Prefix  string
	TTL     time.Duration
}

type BroadcastConfig struct {
	Driver        string // "local", "memory" or "redis"
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type PresenceConfig struct {
	Driver            string // "memory" or "redis"
	Prefix            string
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	KeyTTL            time.Duration `mapstructure:"key_ttl"`
}

type KafkaConfig struct {
	Brokers    string
	Topic      string
	Partitions int
}

type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessDuration time.Duration `mapstructure:"access_duration"`
}

type ChatConfig struct {
	MaxContentLength int `mapstructure:"max_content_length"`
	HistoryPageSize  int `mapstructure:"history_page_size"`
	HistoryMaxPage   int `mapstructure:"history_max_page"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	setDefaults(v)

	// Override from environment
	if err := pkgconfig.BindEnvs(v, map[string]string{
		"server.port":        "PORT",
		"server.instance_id": "INSTANCE_ID",
		"database.driver":    "DB_DRIVER",
		"database.host":      "DB_HOST",
		"database.port":      "DB_PORT",
		"database.user":      "DB_USER",
		"database.password":  "DB_PASSWORD",
		"database.dbname":    "DB_NAME",
		"database.file_path": "DB_FILE_PATH",
		"redis.address":      "REDIS_ADDRESS",
		"redis.password":     "REDIS_PASSWORD",
		"broadcast.driver":   "BROADCAST_DRIVER",
		"presence.driver":    "PRESENCE_DRIVER",
		"kafka.brokers":      "KAFKA_BROKERS",
		"kafka.topic":        "KAFKA_TOPIC",
		"jwt.secret":         "JWT_SECRET",
		"log.level":          "LOG_LEVEL",
	}); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.ShutdownTimeout = parseDuration(v, "server.shutdown_timeout", 30*time.Second)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Cache.TTL = parseDuration(v, "cache.ttl", 5*time.Minute)
	cfg.Presence.HeartbeatInterval = parseDuration(v, "presence.heartbeat_interval", 10*time.Second)
	cfg.Presence.KeyTTL = parseDuration(v, "presence.key_ttl", 30*time.Second)
	cfg.JWT.AccessDuration = parseDuration(v, "jwt.access_duration", 24*time.Hour)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.instance_id", "")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "chat.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.prefix", "chat:user")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("broadcast.driver", "local")
	v.SetDefault("broadcast.channel_prefix", "chat")
	v.SetDefault("presence.driver", "memory")
	v.SetDefault("presence.prefix", "chat:presence")
	v.SetDefault("presence.heartbeat_interval", "10s")
	v.SetDefault("presence.key_ttl", "30s")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "chat-message-events")
	v.SetDefault("kafka.partitions", 8)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "wes-io-chat")
	v.SetDefault("jwt.access_duration", "24h")
	v.SetDefault("chat.max_content_length", 500)
	v.SetDefault("chat.history_page_size", 50)
	v.SetDefault("chat.history_max_page", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
