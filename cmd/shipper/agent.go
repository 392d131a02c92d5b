package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/shipper-client/internal/handler"
	"github.com/mmeshcher/shipper-client/internal/middleware"
	"github.com/mmeshcher/shipper-client/internal/push"
	"github.com/mmeshcher/shipper-client/internal/screen"
)

func newAgentCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run the local agent HTTP API with auto-refresh and push notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd.Context(), a)
		},
	}
}

func runAgent(ctx context.Context, a *app) error {
	sugar := a.logger.Sugar()

	myOrders := screen.NewMyOrders(a.svc, a.logger, a.cfg.FallbackDelay)
	defer myOrders.Close()

	available := screen.NewAvailable(a.svc, a.logger, a.cfg.RefreshInterval)
	defer available.Close()

	authMiddleware := middleware.NewAuthMiddleware(a.cfg.AgentKey)
	if !authMiddleware.Enabled() {
		sugar.Warn("agent key is empty, API authentication disabled")
	}

	h := handler.NewHandler(a.svc, myOrders, available, a.svc.Reconciler(), a.logger, authMiddleware)

	server := &http.Server{
		Addr:              a.cfg.AgentAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	if _, err := a.svc.CurrentSession(ctx); err == nil {
		available.Load()
	}
	available.Start()

	// Пуш о новом заказе тихо обновляет список доступных.
	if len(a.cfg.KafkaBrokers) > 0 {
		notifier := push.Multi(
			push.NewLogNotifier(a.logger),
			push.NotifierFunc(func(context.Context, push.Message) error {
				available.Refresh()
				return nil
			}),
		)

		consumer, err := push.NewConsumer(a.cfg.KafkaBrokers, a.cfg.PushGroup, a.cfg.PushTopic, notifier, a.logger)
		if err != nil {
			return fmt.Errorf("push consumer initialization error: %w", err)
		}
		g.Go(func() error {
			return consumer.Run(ctx)
		})
	} else {
		sugar.Info("no kafka brokers configured, push notifications disabled")
	}

	completions, unsubscribe := myOrders.Completions()
	defer unsubscribe()

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-completions:
				if !ok {
					return nil
				}
				a.logger.Info("order delivered",
					zap.Int64("order_id", ev.Order.ID),
					zap.String("code", ev.Order.Code),
					zap.String("payment_method", ev.Order.PaymentMethod))
			}
		}
	})

	g.Go(func() error {
		sugar.Infow("starting shipper agent", "addr", a.cfg.AgentAddress, "backend", a.cfg.BackendURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down agent...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("agent stopped gracefully")
		return nil
	})

	return g.Wait()
}
