package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/backchannelauth/ciba/pkg/proxy"
	"github.com/backchannelauth/ciba/pkg/storage"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.slogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config, logger *slog.Logger) error {
	bank, err := storage.Open(cfg.storageConfig())
	if err != nil {
		return err
	}

	// key is generated per process; tokens do not survive a restart, which
	// matches the transaction store's memory backend
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return err
	}
	issuer, err := proxy.NewJOSEIssuer(cfg.Issuer, key, cfg.Token.KeyID, time.Duration(cfg.Token.ValiditySeconds)*time.Second)
	if err != nil {
		return err
	}

	var channel proxy.DeviceChannel
	if cfg.Device.Gateway != "" {
		channel = proxy.NewHTTPDeviceChannel(cfg.Device.Gateway, nil)
	} else {
		logger.Warn("no device gateway configured, challenges are logged only")
		channel = logChannel{logger: logger}
	}

	provider, err := proxy.NewProvider(
		proxy.DefaultConfig(cfg.Issuer),
		bank,
		issuer,
		channel,
		proxy.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: provider.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Listen, "backend", cfg.Storage.Backend)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

type logChannel struct {
	logger *slog.Logger
}

func (c logChannel) Challenge(ctx context.Context, summary *proxy.ChallengeSummary) error {
	c.logger.InfoContext(ctx, "authentication challenge",
		"auth_req_id", summary.AuthReqID,
		"client_id", summary.ClientID,
		"binding_message", summary.BindingMessage,
	)
	return nil
}
