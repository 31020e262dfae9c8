package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/inspect_agent/internal/api"
	"github.com/dgnsrekt/inspect_agent/internal/browser"
	"github.com/dgnsrekt/inspect_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/inspect_agent/internal/config"
	"github.com/dgnsrekt/inspect_agent/internal/netutil"
	"github.com/dgnsrekt/inspect_agent/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("inspector config loaded",
		"cdp_url", cfg.CDPURL(),
		"bind_addr", cfg.BindAddr,
		"tab_url_filter", cfg.TabURLFilter,
		"throttle_ms", cfg.ThrottleMS,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	var launcher *browser.Launcher
	if cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.BrowserStartURL,
			ProfileDir: cfg.BrowserProfileDir,
		})
		if err := launcher.Launch(context.Background()); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
	}

	discoverCtx, discoverCancel := context.WithTimeout(context.Background(), 15*time.Second)
	target, err := browser.FindInspectedTarget(discoverCtx, cfg.CDPURL(), cfg.TabURLFilter)
	discoverCancel()
	if err != nil {
		slog.Error("failed to find inspected page", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	slog.Info("inspecting page target", "target_id", target.ID, "url", target.URL)

	sess := cdpcontrol.NewSession(cfg.CDPURL(), target.ID)
	if err := sess.Connect(context.Background()); err != nil {
		slog.Error("failed to connect CDP session", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer sess.Close()

	trk := tracker.New(sess, tracker.Options{
		IsolatedWorldName: cfg.IsolatedWorldName,
		ThrottleInterval:  time.Duration(cfg.ThrottleMS) * time.Millisecond,
		EvalTimeout:       time.Duration(cfg.EvalTimeoutMS) * time.Millisecond,
		HandleCacheSize:   cfg.HandleCacheSize,
		InfoCacheSize:     cfg.InfoCacheSize,
	})
	defer trk.Close()

	go logHoverChanges(trk)

	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(trk)}

	go func() {
		slog.Info("inspector listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("inspector server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("inspector shutdown failed", "error", err)
	}
	if launcher != nil && launcher.Running() {
		launcher.Stop()
	}
}

// logHoverChanges drains hover notifications so the channel's at-most-one
// slot never wedges when no shell consumer is connected.
func logHoverChanges(trk *tracker.Tracker) {
	for note := range trk.HoverChanges() {
		slog.Debug("hover changed", "element_id", note.ElementID)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
