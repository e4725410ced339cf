package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/park285/Cheese-ChessSession/internal/chessbuilder"
	appcfg "github.com/park285/Cheese-ChessSession/internal/config"
	"github.com/park285/Cheese-ChessSession/internal/hostapi"
	"github.com/park285/Cheese-ChessSession/internal/msgcat"
	"github.com/park285/Cheese-ChessSession/internal/obslog"
	"go.uber.org/zap"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("messages_error", zap.Error(err))
	}

	deps, err := chessbuilder.New(cfg, logger)
	if err != nil {
		logger.Fatal("chess_init_error", zap.Error(err))
	}

	srv, err := hostapi.NewServer(deps.Service, msgs, logger.Named("hostapi"))
	if err != nil {
		logger.Fatal("server_init_error", zap.Error(err))
	}
	srv.SetWSOrigins(cfg.WSOrigins)

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		logger.Fatal("listen_error", zap.String("addr", cfg.HTTPAddr), zap.Error(err))
	}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("http_listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	var wsSrv *http.Server
	if addr := strings.TrimSpace(cfg.WSAddr); addr != "" && !strings.EqualFold(addr, "off") {
		wsSrv = &http.Server{
			Addr:              addr,
			Handler:           srv.WSHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("ws_listening", zap.String("addr", addr))
			if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server_error", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if wsSrv != nil {
		if err := wsSrv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := deps.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("shutdown_incomplete", zap.Error(err))
		return
	}
	logger.Info("shutdown_complete")
}
