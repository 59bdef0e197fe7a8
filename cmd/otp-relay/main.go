package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mnitnetwork/otp-relay/internal/allocation"
	"github.com/mnitnetwork/otp-relay/internal/bot"
	"github.com/mnitnetwork/otp-relay/internal/mapping"
	"github.com/mnitnetwork/otp-relay/internal/mapping/filestore"
	"github.com/mnitnetwork/otp-relay/internal/platform/config"
	"github.com/mnitnetwork/otp-relay/internal/platform/logger"
	relayapp "github.com/mnitnetwork/otp-relay/internal/relay/app"
	relayhttp "github.com/mnitnetwork/otp-relay/internal/relay/transport/http"
	"github.com/mnitnetwork/otp-relay/internal/transport/telegram"
)

const serviceName = "otp-relay"

// chatNotifier adapts the telegram client to the relay's Notifier, which
// speaks in subscriber ids rather than chat ids.
type chatNotifier struct {
	tg *telegram.Client
}

func (n chatNotifier) Send(ctx context.Context, subscriber mapping.SubscriberID, text string) error {
	return n.tg.SendMessage(ctx, int64(subscriber), text)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("OTP relay starting", "port", cfg.Port, "data_file", cfg.DataFile)

	store := filestore.Open(cfg.DataFile, appLogger)
	appLogger.Info("Mapping store loaded", "mappings", store.Snapshot().Len())

	resolver := mapping.NewResolver(store, appLogger)

	upstream := allocation.NewClient(cfg.APIBase, cfg.MAPIKey, appLogger,
		&http.Client{Timeout: time.Duration(cfg.UpstreamTimeoutSeconds) * time.Second})
	allocator := allocation.NewService(upstream, store, appLogger)

	tg := telegram.NewClient(cfg.TelegramToken, appLogger, nil)

	processor := relayapp.NewProcessor(resolver, chatNotifier{tg: tg},
		mapping.SubscriberID(cfg.AdminChatID), appLogger)
	callbackHandler := relayhttp.NewCallbackHandler(processor, cfg.WebhookSecret, cfg.MAPIKey, appLogger)

	commands := bot.NewRouter(tg, allocator, upstream, store, cfg.AdminChatID, appLogger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "OTP relay is healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())
	callbackHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Webhook server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		appLogger.Info("Telegram poller starting")
		return tg.Poll(gctx, func(ctx context.Context, u telegram.Update) {
			if u.Message == nil {
				return
			}
			cmd, ok := bot.ParseCommand(u.Message.Chat.ID, u.Message.Text)
			if !ok {
				return
			}
			commands.Dispatch(ctx, cmd)
		})
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service terminated", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Service stopped")
}
