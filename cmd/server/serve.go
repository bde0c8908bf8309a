package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/vedran77/relay/internal/config"
	"github.com/vedran77/relay/internal/health"
	"github.com/vedran77/relay/internal/logging"
	"github.com/vedran77/relay/internal/metrics"
	"github.com/vedran77/relay/internal/ratelimit"
	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/router"
	"github.com/vedran77/relay/internal/transport/natsbus"
	"github.com/vedran77/relay/internal/transport/ws"
	"github.com/vedran77/relay/internal/workerpool"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.Log)
	m := metrics.New()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// Services
	convService := service.NewConversationService(st.convs, st.users, cfg.Limits)
	messageService := service.NewMessageService(st.messages, st.convs, cfg.Limits)
	reactionService := service.NewReactionService(st.reactions, st.messages, st.convs)
	receiptService := service.NewReceiptService(st.receipts, st.messages, st.convs)
	typingService := service.NewTypingService(st.typing, st.convs, cfg.Realtime.TypingTTL, cfg.Realtime.TypingThrottle)
	defer typingService.Close()
	presenceService := service.NewPresenceService(st.presence, cfg.Realtime.PresenceTTL)

	unreadPool := workerpool.New(cfg.Realtime.UnreadWorkers, cfg.Realtime.UnreadQueue, logger.With("component", "unread_pool"))
	defer unreadPool.Shutdown()
	unread := service.NewUnreadDispatcher(st.convs, st.receipts, unreadPool)
	messageService.SetUnreadDispatcher(unread)
	receiptService.SetUnreadDispatcher(unread)

	// Fan-out
	hub := ws.NewHub(convService, typingService, presenceService, ws.Config{
		SendBuffer:   cfg.Realtime.SendBuffer,
		GapTimeout:   cfg.Realtime.GapTimeout,
		ReplayBatch:  cfg.Realtime.ReplayBatch,
		TailInterval: cfg.Realtime.TailCheckInterval,
	})
	hub.SetMetrics(m)

	var (
		notifier service.Notifier = ws.NewHubNotifier(hub)
		natsConn *nats.Conn
	)
	if cfg.NATS.URL != "" {
		client, err := natsbus.NewClient(cfg.NATS)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer client.Close()
		natsConn = client.Conn()

		sub := natsbus.NewSubscriber(natsConn, cfg.NATS.Subject, hub, m)
		if err := sub.Start(); err != nil {
			return fmt.Errorf("subscribing to %s: %w", cfg.NATS.Subject, err)
		}
		defer sub.Stop()

		notifier = natsbus.NewPublisher(natsConn, cfg.NATS.Subject)
		logger.Info("Connected to NATS", "subject", cfg.NATS.Subject)
	}

	type eventSource interface {
		SetNotifier(service.Notifier)
		SetMetrics(*metrics.Metrics)
		SetPublishBudget(d time.Duration)
	}
	for _, src := range []eventSource{convService, messageService, reactionService, receiptService, typingService, presenceService, unread} {
		src.SetNotifier(notifier)
		src.SetMetrics(m)
		src.SetPublishBudget(cfg.Realtime.PublishRetryBudget)
	}

	limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	defer limiter.Close()

	handler := router.New(router.Services{
		Conversations: convService,
		Messages:      messageService,
		Reactions:     reactionService,
		Receipts:      receiptService,
		Typing:        typingService,
		Presence:      presenceService,
	}, router.Options{
		JWTSecret:      cfg.Auth.JWTSecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Hub:            hub,
		Health:         health.NewChecker(natsConn, st.redis, st.pool),
		Metrics:        m,
		Limiter:        limiter,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting server", "addr", srv.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		return err
	}
	logger.Info("Server stopped")
	return nil
}
