package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pmorrell/minder/internal/agent"
	"github.com/pmorrell/minder/internal/backup"
	"github.com/pmorrell/minder/internal/config"
	"github.com/pmorrell/minder/internal/database"
	"github.com/pmorrell/minder/internal/discord"
	"github.com/pmorrell/minder/internal/email"
	"github.com/pmorrell/minder/internal/handoff"
	"github.com/pmorrell/minder/internal/live"
	"github.com/pmorrell/minder/internal/logging"
	"github.com/pmorrell/minder/internal/model"
	"github.com/pmorrell/minder/internal/notify"
	"github.com/pmorrell/minder/internal/policy"
	"github.com/pmorrell/minder/internal/push"
	"github.com/pmorrell/minder/internal/scheduler"
	"github.com/pmorrell/minder/internal/secrets"
	"github.com/pmorrell/minder/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	reminders := store.NewReminderStore(db)
	notifications := store.NewNotificationStore(db)
	users := store.NewUserStore(db)

	// Secret resolution: Secrets Manager when ids are configured, the
	// environment otherwise.
	secretCache := newSecretCache(cfg)

	ctx := context.Background()
	emailClient := email.NewClient(resolveSecret(ctx, secretCache, cfg.PostmarkTokenID, cfg.PostmarkToken, logger), cfg.FromEmail)
	discordClient := discord.NewClient(resolveSecret(ctx, secretCache, cfg.DiscordWebhookID, cfg.DiscordWebhook, logger))
	pushService := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)
	agentClient := agent.NewClient(cfg.AgentURL, cfg.AgentAPIKey)

	var bus handoff.Bus
	if cfg.RedisAddr != "" {
		redisBus := handoff.NewRedisBus(cfg.RedisAddr, cfg.RedisPassword, cfg.HandoffKey)
		defer redisBus.Close()
		bus = redisBus
		logger.Info("handoff bus: redis", "addr", cfg.RedisAddr)
	} else {
		bus = handoff.NewMemoryBus(cfg.BatchLimit * 4)
		logger.Info("handoff bus: in-memory")
	}

	queue := notify.NewQueue(notifications, bus, logger)
	resolver := policy.NewResolver(pushService.Configured())
	dispatchers := notify.Registry{
		model.ChannelEmail:   notify.NewEmailDispatcher(emailClient),
		model.ChannelDiscord: notify.NewDiscordDispatcher(discordClient),
		model.ChannelPush:    notify.NewPushDispatcher(pushService),
	}

	hub := live.NewHub(logger)

	evaluate := scheduler.NewEvaluateTick(reminders, users, queue, resolver, cfg.BatchLimit, logger)
	dispatch := scheduler.NewDispatchTick(notifications, users, bus, dispatchers, hub,
		cfg.BatchLimit, cfg.SendTimeout, cfg.RecoveryAge, logger)
	briefing := scheduler.NewBriefingTick(users, queue, resolver, agentClient, cfg.BriefingInterval, logger)

	loops := []*scheduler.Loop{
		scheduler.NewLoop("evaluate", cfg.EvaluateInterval, evaluate.Run, logger),
		scheduler.NewLoop("dispatch", cfg.DispatchInterval, dispatch.Run, logger),
		scheduler.NewLoop("briefing", cfg.BriefingInterval, briefing.Run, logger),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for _, l := range loops {
		l.Start(runCtx)
	}

	backupMgr := backup.NewManager(backup.Config{
		Bucket:        cfg.BackupBucket,
		Endpoint:      cfg.BackupEndpoint,
		Region:        cfg.BackupRegion,
		AccessKey:     cfg.BackupAccessKey,
		SecretKey:     cfg.BackupSecretKey,
		Passphrase:    cfg.BackupPassphrase,
		DBPath:        cfg.DBPath,
		Hour:          cfg.BackupHour,
		RetentionDays: cfg.BackupRetention,
	}, db, logger)
	backupMgr.Start(runCtx)

	// Refresh rotated credentials into the senders once per secret TTL.
	if secretCache != nil {
		go refreshSecrets(runCtx, secretCache, cfg, emailClient, discordClient, logger)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/vapid-public-key", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"publicKey": pushService.VAPIDPublicKey()})
	})
	mux.Handle("/ws", live.Handler(hub, logger))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("minder scheduler running", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}

	cancel()
	for _, l := range loops {
		l.Stop()
	}
	briefing.Wait()
	backupMgr.Stop()
}

// newSecretCache returns a cache over Secrets Manager, or nil when no
// secret ids are configured and the environment is the source of truth.
func newSecretCache(cfg config.Config) *secrets.Cache {
	if cfg.PostmarkTokenID == "" && cfg.DiscordWebhookID == "" {
		return nil
	}
	provider := secrets.NewAWSProvider(cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
	return secrets.NewCache(provider, cfg.SecretTTL)
}

// resolveSecret fetches a secret by id, falling back to the plain
// environment value when no id is set or the fetch fails at startup.
func resolveSecret(ctx context.Context, cache *secrets.Cache, secretID, envValue string, logger *slog.Logger) string {
	if cache == nil || secretID == "" {
		return envValue
	}
	value, err := cache.Get(ctx, secretID)
	if err != nil {
		logger.Warn("secret fetch failed, using environment value", "secret_id", secretID, "error", err)
		return envValue
	}
	return value
}

// refreshSecrets re-reads rotated credentials on the cache TTL and hot
// swaps them into the senders.
func refreshSecrets(ctx context.Context, cache *secrets.Cache, cfg config.Config,
	emailClient *email.Client, discordClient *discord.Client, logger *slog.Logger) {
	interval := cfg.SecretTTL
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cfg.PostmarkTokenID != "" {
				if token, err := cache.Get(ctx, cfg.PostmarkTokenID); err == nil {
					emailClient.UpdateConfig(token, cfg.FromEmail)
				} else {
					logger.Warn("refresh postmark token", "error", err)
				}
			}
			if cfg.DiscordWebhookID != "" {
				if webhook, err := cache.Get(ctx, cfg.DiscordWebhookID); err == nil {
					discordClient.UpdateConfig(webhook)
				} else {
					logger.Warn("refresh discord webhook", "error", err)
				}
			}
		}
	}
}
