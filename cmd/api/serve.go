package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/memstore"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/repo"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/notify"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/router"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-core/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-core/pkg/utilities"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		return err
	}
	defer lg.Sync()
	sugar := lg.Sugar()
	sugar.Info("starting service-auth-core")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, closeFn, err := buildApp(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer closeFn()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	sugar.Infow("listening", "addr", cfg.HTTPAddr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return oops.Code("HTTP_SERVE_FAILED").Wrap(err)
	}

	sugar.Info("shutting down")
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnw("http server shutdown failed", "err", err)
	}
	sugar.Info("goodbye")
	return nil
}

// buildApp wires stores, the auth service and the HTTP routes from cfg.
func buildApp(ctx context.Context, cfg config.Config, sugar *zap.SugaredLogger) (http.Handler, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}

	var store auth.Store
	if cfg.MemoryStore {
		sugar.Warn("using in-memory store; data is lost on exit")
		store = memstore.New()
	} else {
		db, err := database.Connect(ctx, database.ConfigFromEnv())
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, db)
		pg := repo.NewStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		store = pg
	}

	var devices auth.DeviceTokenStore = memstore.NewDevices()
	if cfg.RedisAddr != "" {
		rdb, err := database.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, rdb)
		devices = repo.NewDeviceStore(rdb)
	}

	codec, err := token.NewCodec(token.Config{Secret: []byte(cfg.JWTSecret), Algorithm: token.AlgHS256})
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	var notifier notify.Notifier = notify.LogNotifier{Logger: sugar}
	if cfg.SlackWebhookURL != "" {
		notifier = notify.NewSlackNotifier(cfg.SlackWebhookURL)
	}

	m := metrics.New()
	svc, err := auth.NewService(cfg.Auth, auth.Deps{
		Store:    store,
		Devices:  devices,
		Codec:    codec,
		Mailer:   notify.LogMailer{Logger: sugar},
		Notifier: notifier,
		Logger:   sugar,
		Metrics:  m,
	})
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	authn := auth.NewAuthenticator(svc, auth.NewStaticAPIKeyChecker(store, cfg.APIKeys))
	h := auth.NewHandler(svc, authn, sugar)
	return router.RegisterRoutes(sugar, h, m), closeAll, nil
}
