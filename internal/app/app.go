package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/counter-checkout/internal/domain/checkout"
	"github.com/xenking/counter-checkout/internal/domain/staff"
	"github.com/xenking/counter-checkout/internal/handler"
	"github.com/xenking/counter-checkout/internal/receipt"
	"github.com/xenking/counter-checkout/internal/storage/postgres"
	"github.com/xenking/counter-checkout/pkg/health"
	"github.com/xenking/counter-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	policy, err := cfg.Checkout.Policy()
	if err != nil {
		return errors.Wrap(err, "checkout policy")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second), health.WithThresholds(3, 1))

	// Quotation numbers and register locks.
	state, err := newRegisterState(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer state.close()
	if state.ping != nil {
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck("redis", state.ping))
	}

	// Receipts.
	printer, err := receipt.NewPrinter(cfg.Printer)
	if err != nil {
		return errors.Wrap(err, "create printer")
	}
	// An offline printer degrades receipts to a warning, it never blocks sales.
	healthSvc.AddReadinessCheck("printer", 2*time.Second, health.PingCheck("printer", printer), health.Advisory())

	var receiptOpts []receipt.Option
	perRegister, err := cfg.registerPrinters()
	if err != nil {
		return err
	}
	for registerID, pc := range perRegister {
		p, err := receipt.NewPrinter(pc)
		if err != nil {
			return errors.Wrapf(err, "create printer of register %q", registerID)
		}
		receiptOpts = append(receiptOpts, receipt.WithRegisterPrinter(registerID, p))
		healthSvc.AddReadinessCheck("printer:"+registerID, 2*time.Second,
			health.PingCheck("printer of "+registerID, p), health.Advisory())
	}
	if cfg.SMTP.Enabled() {
		receiptOpts = append(receiptOpts, receipt.WithMailer(receipt.NewSMTPMailer(cfg.SMTP)))
	}
	receipts := receipt.NewDispatcher(cfg.Receipt, cfg.Printer.Width, printer, receiptOpts...)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	saleRepo := postgres.NewSaleRepository(pool)
	staffRepo := postgres.NewStaffRepository(pool)

	instruments, err := checkout.NewInstruments(m.MeterProvider(), m.TracerProvider())
	if err != nil {
		return errors.Wrap(err, "create checkout instruments")
	}
	deps := checkout.Deps{
		Store:       saleRepo,
		Receipts:    receipts,
		Quotations:  state.quotations,
		Instruments: instruments,
	}
	open := func(ctx context.Context, registerID string, op *staff.Member) (*checkout.Orchestrator, error) {
		return checkout.NewOrchestrator(ctx, policy, deps, registerID, op)
	}
	registers := handler.NewRegisters(ctx, state.locker, open, cfg.Checkout.LockRefresh)

	// HTTP handlers.
	h := handler.NewHandler(
		productRepo,
		customerRepo,
		saleRepo,
		registers,
		handler.NewSecurity(staffRepo, []byte(cfg.APIKeyPepper)),
	)
	router := h.Routes()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      policy.PersistTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.RouteContext(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("pos-api", m.MeterProvider(), m.TracerProvider()),
			httpmiddleware.LogRequests(),
			httpmiddleware.Labeler(),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		registers.CloseAll(zctx.Base(shutdownCtx, lg))
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
