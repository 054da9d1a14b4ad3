package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zapcampanha/console/internal/api/handler"
	"github.com/zapcampanha/console/internal/app"
	"github.com/zapcampanha/console/internal/backend"
	"github.com/zapcampanha/console/internal/cache"
	cachememory "github.com/zapcampanha/console/internal/cache/memory"
	cacheredis "github.com/zapcampanha/console/internal/cache/redis"
	"github.com/zapcampanha/console/internal/channel"
	"github.com/zapcampanha/console/internal/config"
	"github.com/zapcampanha/console/internal/credential"
	"github.com/zapcampanha/console/internal/eventlog"
	"github.com/zapcampanha/console/internal/link"
	"github.com/zapcampanha/console/internal/logger"
	"github.com/zapcampanha/console/internal/notify"
	"github.com/zapcampanha/console/internal/server"
)

func main() {
	cfg := config.Load()

	logr, err := logger.New(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logr.Sync()

	logr.Info("iniciando console",
		zap.String("env", cfg.App.Env),
		zap.String("log_level", cfg.Log.Level),
		zap.String("port", cfg.App.Port),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("data_dir", cfg.Storage.DataDir),
	)

	creds, err := credential.NewStore(cfg.Storage.DataDir, cfg.Storage.CredentialKey, logr)
	if err != nil {
		log.Fatalf("credential: %v", err)
	}

	var redisClient *goredis.Client
	var store cache.Store
	if cfg.Redis.Enabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		store = cacheredis.NewStore(redisClient, "console")
		logr.Info("cache redis habilitado", zap.String("addr", cfg.Redis.Addr))
	} else {
		store = cachememory.NewStore()
		logr.Info("cache em memória habilitado")
	}

	client := backend.NewClient(
		cfg.Backend.BaseURL,
		time.Duration(cfg.Backend.TimeoutSeconds)*time.Second,
		creds,
		logr,
	)

	data := cache.NewRemoteData(store, client, cache.TTLs{
		Accounts:  time.Duration(cfg.Cache.AccountsTTLSeconds) * time.Second,
		Campaigns: time.Duration(cfg.Cache.CampaignsTTLSeconds) * time.Second,
		Analytics: time.Duration(cfg.Cache.AnalyticsTTLSeconds) * time.Second,
	}, logr)

	center, err := notify.NewCenter(cfg.Notification.DisplayDuration(), logr)
	if err != nil {
		log.Fatalf("notify: %v", err)
	}

	events, err := eventlog.New(cfg.Storage.DataDir, logr)
	if err != nil {
		log.Fatalf("eventlog: %v", err)
	}

	newSession := func(token string) link.Realtime {
		return channel.NewSession(channel.Options{
			URL:               cfg.Channel.URL,
			Token:             token,
			ReconnectAttempts: cfg.Channel.ReconnectAttempts,
			ReconnectDelay:    cfg.Channel.ReconnectDelay(),
			ReconnectDelayMax: cfg.Channel.ReconnectDelayMax(),
			ConnectTimeout:    cfg.Channel.ConnectTimeout(),
			PingInterval:      time.Duration(cfg.Channel.PingIntervalSeconds) * time.Second,
			WriteTimeout:      time.Duration(cfg.Channel.WriteTimeoutSeconds) * time.Second,
			Log:               logr,
		})
	}

	controller := link.NewController(link.Options{
		API:            client,
		Data:           data,
		Notify:         center,
		Events:         events,
		NewSession:     newSession,
		QRMinLength:    cfg.QR.MinLength,
		QRFallback:     cfg.Channel.QRFallback(),
		JoinAckTimeout: cfg.Channel.JoinAckTimeout(),
		Log:            logr,
	})

	// Credencial restaurada do disco reativa a assinatura realtime sozinha.
	if token, err := creds.Token(); err == nil {
		if userID := creds.UserID(); userID != "" {
			if err := controller.Activate(userID, token); err != nil {
				logr.Warn("falha ao reativar sessão", zap.Error(err))
			}
		} else {
			logr.Warn("token restaurado sem identidade, sessão não ativada")
		}
	}

	router := server.NewRouter(server.Options{
		Env:                 cfg.App.Env,
		HealthHandler:       handler.NewHealthHandler(),
		SessionHandler:      handler.NewSessionHandler(creds, controller, logr),
		AccountHandler:      handler.NewAccountHandler(data, controller, events, logr),
		CampaignHandler:     handler.NewCampaignHandler(data, client, logr),
		AnalyticsHandler:    handler.NewAnalyticsHandler(data, logr),
		NotificationHandler: handler.NewNotificationHandler(center, logr),
	})

	application := app.New(cfg, logr, router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := application.Run(context.Background()); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logr.Info("sinal de encerramento recebido")
	case err := <-errCh:
		logr.Error("servidor finalizado com erro", zap.Error(err))
	}

	logr.Info("iniciando shutdown graceful")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	controller.Deactivate()
	center.Close()

	if err := events.Close(); err != nil {
		logr.Warn("erro ao fechar eventlog", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		logr.Warn("erro ao fechar cache", zap.Error(err))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logr.Warn("erro ao fechar conexão Redis", zap.Error(err))
		}
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		logr.Error("erro ao encerrar servidor", zap.Error(err))
	} else {
		logr.Info("servidor encerrado com sucesso")
	}
}
