package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gonkalabs/safeguard-go/internal/activity"
	"github.com/gonkalabs/safeguard-go/internal/api"
	"github.com/gonkalabs/safeguard-go/internal/classifier"
	"github.com/gonkalabs/safeguard-go/internal/classifier/remote"
	"github.com/gonkalabs/safeguard-go/internal/config"
	"github.com/gonkalabs/safeguard-go/internal/credential"
	"github.com/gonkalabs/safeguard-go/internal/gate"
	"github.com/gonkalabs/safeguard-go/internal/sanitize"
	"github.com/gonkalabs/safeguard-go/internal/settings"
	"github.com/gonkalabs/safeguard-go/internal/settings/file"
	"github.com/gonkalabs/safeguard-go/internal/settings/memory"
	"github.com/gonkalabs/safeguard-go/internal/signer"
	"github.com/gonkalabs/safeguard-go/internal/state"
	"github.com/gonkalabs/safeguard-go/internal/taxonomy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx := context.Background()

	var store settings.Store
	if cfg.SettingsFile != "" {
		store = file.New(cfg.SettingsFile)
	} else {
		store = memory.NewInMemory()
		slog.Warn("settings are kept in memory only; set SAFEGUARD_SETTINGS_FILE to persist them")
	}
	st, err := state.New(ctx, store)
	if err != nil {
		slog.Error("settings error", "err", err)
		os.Exit(1)
	}
	cred, err := credential.New(ctx, st)
	if err != nil {
		slog.Error("credential error", "err", err)
		os.Exit(1)
	}

	tax := taxonomy.Default()
	if cfg.TaxonomyFile != "" {
		if tax, err = taxonomy.Load(cfg.TaxonomyFile); err != nil {
			slog.Error("taxonomy error", "err", err)
			os.Exit(1)
		}
		slog.Info("taxonomy loaded", "path", cfg.TaxonomyFile)
	}

	var (
		cls    *classifier.Classifier
		nav    *gate.Gate
		client *remote.Client
	)
	if cfg.RemoteEnabled {
		opts := remote.Options{Timeout: cfg.RemoteTimeout, CacheTTL: cfg.CacheTTL}
		if cfg.CacheTTL == 0 {
			opts.CacheTTL = -1
		}
		if cfg.ScrubPII {
			opts.Scrubber = sanitize.New()
		}
		if cfg.SigningKey != "" {
			s, err := signer.New(cfg.SigningKey)
			if err != nil {
				slog.Error("signer error", "err", err)
				os.Exit(1)
			}
			opts.Signer = s
			slog.Info("request signing enabled", "install", s.Install())
		}
		client, err = remote.New(cfg.RemoteEndpoints, opts)
		if err != nil {
			slog.Error("remote client error", "err", err)
			os.Exit(1)
		}
		defer client.Close()

		cls = classifier.New(tax, client)
		nav = gate.New(cls, client)
	} else {
		cls = classifier.New(tax, nil)
		nav = gate.New(cls, nil)
	}

	deps := api.Deps{
		State:         st,
		Credential:    cred,
		Classifier:    cls,
		Navigation:    nav,
		Activity:      activity.New(),
		BlockPageBase: cfg.BlockPageBase,
		PageTTL:       cfg.PageTTL,
	}
	if client != nil && cfg.RemoteImages {
		deps.Images = client
	}
	dispatcher := api.NewDispatcher(deps)
	defer dispatcher.Close()

	mux := http.NewServeMux()
	api.New(dispatcher).Register(mux)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)

		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()

		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	slog.Info("starting safeguard server",
		"addr", cfg.ListenAddr,
		"remote", cfg.RemoteEnabled,
		"endpoints", len(cfg.RemoteEndpoints),
		"remoteImages", cfg.RemoteImages,
		"scrubPII", cfg.ScrubPII,
		"persistent", cfg.SettingsFile != "",
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
