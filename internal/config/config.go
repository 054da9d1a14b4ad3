package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
)

// Version é sobrescrita no build via ldflags.
var Version = "dev"

type Config struct {
	App          AppConfig
	Backend      BackendConfig
	Channel      ChannelConfig
	Redis        RedisConfig
	Cache        CacheConfig
	Log          LogConfig
	Notification NotificationConfig
	QR           QRConfig
	Storage      StorageConfig
}

type AppConfig struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Port    string `env:"PORT" envDefault:"8090"`
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8090"`
}

type BackendConfig struct {
	BaseURL        string `env:"BACKEND_BASE_URL" envDefault:"http://localhost:5000"`
	TimeoutSeconds int    `env:"BACKEND_TIMEOUT_SECONDS" envDefault:"30"`
}

// ChannelConfig controla a conexão realtime com o backend.
// Os defaults reproduzem o contrato do servidor de eventos.
type ChannelConfig struct {
	URL                 string `env:"CHANNEL_URL" envDefault:"ws://localhost:5000/ws"`
	ReconnectAttempts   int    `env:"CHANNEL_RECONNECT_ATTEMPTS" envDefault:"10"`
	ReconnectDelayMs    int    `env:"CHANNEL_RECONNECT_DELAY_MS" envDefault:"1000"`
	ReconnectDelayMaxMs int    `env:"CHANNEL_RECONNECT_DELAY_MAX_MS" envDefault:"5000"`
	ConnectTimeoutMs    int    `env:"CHANNEL_CONNECT_TIMEOUT_MS" envDefault:"20000"`
	QRFallbackMs        int    `env:"CHANNEL_QR_FALLBACK_MS" envDefault:"10000"`
	JoinAckTimeoutMs    int    `env:"CHANNEL_JOIN_ACK_TIMEOUT_MS" envDefault:"5000"`
	PingIntervalSeconds int    `env:"CHANNEL_PING_INTERVAL_SECONDS" envDefault:"25"`
	WriteTimeoutSeconds int    `env:"CHANNEL_WRITE_TIMEOUT_SECONDS" envDefault:"10"`
}

func (c ChannelConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

func (c ChannelConfig) ReconnectDelayMax() time.Duration {
	return time.Duration(c.ReconnectDelayMaxMs) * time.Millisecond
}

func (c ChannelConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

func (c ChannelConfig) QRFallback() time.Duration {
	return time.Duration(c.QRFallbackMs) * time.Millisecond
}

func (c ChannelConfig) JoinAckTimeout() time.Duration {
	return time.Duration(c.JoinAckTimeoutMs) * time.Millisecond
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
}

type CacheConfig struct {
	AccountsTTLSeconds  int `env:"CACHE_ACCOUNTS_TTL_SECONDS" envDefault:"10"`
	CampaignsTTLSeconds int `env:"CACHE_CAMPAIGNS_TTL_SECONDS" envDefault:"15"`
	AnalyticsTTLSeconds int `env:"CACHE_ANALYTICS_TTL_SECONDS" envDefault:"30"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"debug"`
}

type NotificationConfig struct {
	DisplayMs int `env:"NOTIFICATION_DISPLAY_MS" envDefault:"4000"`
}

func (c NotificationConfig) DisplayDuration() time.Duration {
	return time.Duration(c.DisplayMs) * time.Millisecond
}

type QRConfig struct {
	MinLength int `env:"QR_MIN_LENGTH" envDefault:"50"`
}

type StorageConfig struct {
	DataDir       string `env:"DATA_DIR" envDefault:"/app/data"`
	CredentialKey string `env:"CREDENTIAL_KEY_ENC" envDefault:"zapcampanha-credential-key-change-in-production"`
}

// Load carrega as configurações da aplicação.
func Load() Config {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config: não foi possível carregar variáveis: %v", err)
	}
	return cfg
}
