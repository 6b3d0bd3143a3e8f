// Package bootstrap wires every collaborator built across the other
// internal packages into a running service: config.go/service.go/server.go
// split, env-driven Config, InitServersWithOptions entrypoint. Config
// loading, logger construction, and graceful shutdown are built directly
// against internal/envconfig, internal/mlog/zaplog, and
// net/http/os/signal (see DESIGN.md's dropped-dependency notes).
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lerian-labs/icvsb-gateway/internal/cache"
	"github.com/lerian-labs/icvsb-gateway/internal/envconfig"
	"github.com/lerian-labs/icvsb-gateway/internal/httpapi"
	"github.com/lerian-labs/icvsb-gateway/internal/mlog"
	"github.com/lerian-labs/icvsb-gateway/internal/mlog/zaplog"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
	"github.com/lerian-labs/icvsb-gateway/internal/provider"
	"github.com/lerian-labs/icvsb-gateway/internal/registry"
	"github.com/lerian-labs/icvsb-gateway/internal/store"
	"github.com/lerian-labs/icvsb-gateway/internal/webhook"
)

// Config is the top-level environment-driven configuration.
type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS"`
	LogLevel      string `env:"LOG_LEVEL"`
	LogFilePath   string `env:"ICVSB_LOGGER_FILE"`

	StoreDSN     string `env:"ICVSB_DATABASE_CONNECTION_URL"`
	StoreLogPath string `env:"ICVSB_DATABASE_LOG_FILE"`

	RedisAddr string `env:"REDIS_ADDR"`
	CacheTTL  time.Duration

	RabbitMQURL string `env:"RABBITMQ_URL"`

	GoogleVisionEndpoint string `env:"GOOGLE_VISION_ENDPOINT"`
	AmazonRekognitionURL string `env:"AMAZON_REKOGNITION_ENDPOINT"`
	AzureVisionEndpoint  string `env:"AZURE_VISION_ENDPOINT"`
	ProviderDeadlineSecs int    `env:"PROVIDER_DEADLINE_SECONDS"`

	RequestClientConcurrency int `env:"REQUEST_CLIENT_CONCURRENCY"`
}

// defaults fills in every field InitServersWithOptions callers are allowed
// to leave unset.
func (c *Config) defaults() {
	if c.ServerAddress == "" {
		c.ServerAddress = ":4003"
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.LogFilePath == "" {
		c.LogFilePath = "stdout"
	}

	if c.StoreDSN == "" {
		c.StoreDSN = "sqlite://icvsb.db"
	}

	if c.StoreLogPath == "" {
		c.StoreLogPath = "icvsb.db.log"
	}

	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}

	if c.ProviderDeadlineSecs == 0 {
		c.ProviderDeadlineSecs = int(provider.DefaultDeadline.Seconds())
	}
}

// Options lets callers (tests, cmd/icvsb-gateway) inject a pre-built
// logger instead of constructing one from Config.
type Options struct {
	Logger mlog.Logger
}

// InitServers loads Config from the environment and wires a Service.
func InitServers() (*Service, error) {
	return InitServersWithOptions(nil)
}

// InitServersWithOptions is the single construction path every entrypoint
// goes through: load config, build the logger, open the store, build every
// repository/adapter, wire internal/httpapi.Deps, and assemble the Server.
func InitServersWithOptions(opts *Options) (*Service, error) {
	cfg := &Config{}
	if err := envconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}

	cfg.defaults()

	var logger mlog.Logger

	if opts != nil && opts.Logger != nil {
		logger = opts.Logger
	} else {
		level, err := mlog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: parse log level: %w", err)
		}

		zl, err := zaplog.New(level, cfg.LogFilePath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: init logger: %w", err)
		}

		logger = zl
	}

	storeLevel, err := mlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parse log level: %w", err)
	}

	storeLogger, err := zaplog.New(storeLevel, cfg.StoreLogPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: init store logger: %w", err)
	}

	st, err := store.Open(context.Background(), cfg.StoreDSN, storeLogger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open store: %w", err)
	}

	serviceRepo := store.NewServiceRepository(st)
	severityRepo := store.NewSeverityRepository(st)
	batchRepo := store.NewBatchRequestRepository(st)
	requestRepo := store.NewRequestRepository(st)
	responseRepo := store.NewResponseRepository(st)
	keyRepo := store.NewBenchmarkKeyRepository(st)

	deadline := time.Duration(cfg.ProviderDeadlineSecs) * time.Second
	httpClient := &http.Client{Timeout: deadline}

	providers := map[model.ServiceName]provider.LabelProvider{
		model.ServiceGoogle: provider.NewGoogleVision(httpClient, cfg.GoogleVisionEndpoint, deadline),
		model.ServiceAmazon: provider.NewAmazonRekognition(httpClient, cfg.AmazonRekognitionURL, deadline),
		model.ServiceAzure:  provider.NewAzureVision(httpClient, cfg.AzureVisionEndpoint, deadline),
	}

	var webhookPub *webhook.Publisher

	if cfg.RabbitMQURL != "" {
		webhookPub, err = webhook.NewPublisher(cfg.RabbitMQURL, logger)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: init webhook publisher: %w", err)
		}
	}

	respCache := cache.New(cfg.RedisAddr, cfg.CacheTTL)

	reg := registry.New()

	deps := &httpapi.Deps{
		Store:                    st,
		Registry:                 reg,
		ServiceRepo:              serviceRepo,
		SeverityRepo:             severityRepo,
		BatchRepo:                batchRepo,
		RequestRepo:              requestRepo,
		ResponseRepo:             responseRepo,
		KeyRepo:                  keyRepo,
		Providers:                providers,
		Cache:                    respCache,
		WebhookPub:               webhookPub,
		Logger:                   logger,
		RequestClientConcurrency: cfg.RequestClientConcurrency,
	}

	app := httpapi.NewRouter(deps)

	server := NewServer(cfg, app, logger)

	return &Service{Server: server, Logger: logger, store: st, cache: respCache, webhookPub: webhookPub, storeLogger: storeLogger}, nil
}
