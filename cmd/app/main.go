package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"marketplace-billing/internal/config"
	"marketplace-billing/internal/domain/model"
	pg "marketplace-billing/internal/infra/db/postgres"
	"marketplace-billing/internal/infra/logging"
	"marketplace-billing/internal/infra/metrics"
	"marketplace-billing/internal/infra/payment"
	red "marketplace-billing/internal/infra/redis"
	"marketplace-billing/internal/infra/sched"
	"marketplace-billing/internal/infra/web"
	"marketplace-billing/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, insecure cookies)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, int32(cfg.Database.PoolSize))
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	intentCache := red.NewIntentCache(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	tenantRepo := pg.NewTenantRepo(pool)
	paymentRepo := pg.NewPaymentRepo(pool)
	examRepo := pg.NewExamApplicationRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Adapters ----
	sessions := web.NewSessionManager(cfg.Auth.HMACSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	gateway := payment.NewHTTPCheckoutGateway(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey, cfg.Gateway.Timeout)

	checkoutCfg, err := buildCheckoutConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("checkout price configuration invalid")
	}

	// ---- Use cases ----
	resolver := usecase.NewTenantResolver(tenantRepo, logger)
	checkoutUC := usecase.NewCheckoutUseCase(checkoutCfg, sessions, gateway, intentCache, paymentRepo, tenantRepo, examRepo, logger)
	returnUC := usecase.NewReturnUseCase(checkoutCfg, sessions, resolver, tenantRepo, paymentRepo, intentCache, gateway, logger)
	webhookUC := usecase.NewWebhookUseCase(tenantRepo, paymentRepo, examRepo, resolver, txManager, logger)

	// ---- HTTP server ----
	srv := web.NewServer(cfg, checkoutUC, returnUC, webhookUC, rateLimiter, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Stale checkout reconciler ----
	reconciler := sched.NewPaymentReconciler(checkoutUC, paymentRepo, cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, logger)
	go reconciler.Start(ctx)

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
}

func buildCheckoutConfig(cfg *config.Config) (usecase.CheckoutConfig, error) {
	base := strings.TrimRight(cfg.Server.PublicURL, "/")
	out := usecase.CheckoutConfig{
		Prices:    make(map[model.TenantType]usecase.PriceEntry, len(cfg.Gateway.Prices)),
		ReturnURL: base + "/api/v1/payment/return",
		CancelURL: base + cfg.Server.CancelPath,
		LoginPath: cfg.Server.LoginPath,
	}
	for tag, p := range cfg.Gateway.Prices {
		t, err := model.ParseTenantType(tag)
		if err != nil {
			return usecase.CheckoutConfig{}, err
		}
		out.Prices[t] = usecase.PriceEntry{PriceID: p.PriceID, Amount: p.Amount, Currency: p.Currency}
	}
	out.ExamFeePrice = usecase.PriceEntry{
		PriceID:  cfg.Gateway.ExamFeePrice.PriceID,
		Amount:   cfg.Gateway.ExamFeePrice.Amount,
		Currency: cfg.Gateway.ExamFeePrice.Currency,
	}
	return out, nil
}
