package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"
	"time"

	"mcptelegram/internal/account"
	"mcptelegram/internal/config"
	"mcptelegram/internal/mcpserver"
	"mcptelegram/internal/telegram"
)

const shutdownTimeout = 5 * time.Second

// App owns the process wide Telegram connection and the tool server built
// on it.
type App struct {
	cfg       config.Config
	log       *slog.Logger
	gateway   *telegram.Gateway
	service   *account.Service
	mcpServer *mcpserver.Server
}

func NewApp(cfg config.Config, log *slog.Logger) (*App, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("prepare state dir: %w", err)
	}
	gateway, err := telegram.NewGateway(telegram.Options{
		APIID:       cfg.APIID,
		APIHash:     cfg.APIHash,
		SessionPath: cfg.SessionPath(),
		Logger:      log.With("component", "telegram"),
	})
	if err != nil {
		return nil, err
	}
	service := account.NewService(gateway, cfg.DownloadsDir(), log.With("component", "account"))
	return &App{
		cfg:     cfg,
		log:     log,
		gateway: gateway,
		service: service,
		mcpServer: mcpserver.New(service, mcpserver.Options{
			Version: version,
			Logger:  log.With("component", "mcp"),
		}),
	}, nil
}

// Serve connects to Telegram and serves tools until ctx is done or the stdio
// client goes away. An empty httpAddr selects stdio.
func (a *App) Serve(ctx context.Context, httpAddr string) error {
	err := a.gateway.Run(ctx, func(runCtx context.Context) error {
		if httpAddr == "" {
			return a.mcpServer.RunStdio(runCtx)
		}
		if err := a.mcpServer.Start(httpAddr); err != nil {
			return startFailure(err, httpAddr)
		}
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.mcpServer.Stop(shutdownCtx)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) Login(ctx context.Context, qr bool, phone string) (string, error) {
	opts := telegram.LoginOptions{Phone: phone}
	if qr {
		opts.QRPath = a.cfg.QRPath()
	}
	return a.gateway.Login(ctx, opts)
}

func startFailure(err error, addr string) error {
	if isAddressInUse(err) {
		return fmt.Errorf("listen %s: address already in use", addr)
	}
	return fmt.Errorf("listen %s: %w", addr, err)
}

func isAddressInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.EADDRINUSE)
	}
	return false
}
