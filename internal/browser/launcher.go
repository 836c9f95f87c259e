// Package browser drives headless Chromium for response capture and login.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/oklog/ulid/v2"

	"github.com/justmadeid/social-services/internal/config"
)

// DefaultUserAgent is presented by every page.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

var (
	// CaptureViewport is used for scraping pages.
	CaptureViewport = Viewport{Width: 1920, Height: 1080}
	// LoginViewport is used by the login flow.
	LoginViewport = Viewport{Width: 1280, Height: 1024}
)

func (v Viewport) orDefault() Viewport {
	if v.Width <= 0 || v.Height <= 0 {
		return CaptureViewport
	}
	return v
}

// Instance is one launched browser process. Callers own it and must Close it.
type Instance struct {
	ID        string
	Browser   *rod.Browser
	CreatedAt time.Time

	launcher *launcher.Launcher
	logger   *slog.Logger
}

// Close shuts the browser down and removes its profile directory.
func (i *Instance) Close() {
	if i.Browser != nil {
		if err := i.Browser.Close(); err != nil {
			i.logger.Debug("browser close failed", "id", i.ID, "error", err)
		}
	}
	if i.launcher != nil {
		i.launcher.Kill()
		i.launcher.Cleanup()
	}
	i.logger.Debug("browser closed", "id", i.ID, "lifetime", time.Since(i.CreatedAt))
}

// Launcher starts fresh browser processes. Nothing is pooled: every capture
// and every login gets its own process.
type Launcher struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewLauncher creates a launcher.
func NewLauncher(cfg *config.Config, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{cfg: cfg, logger: logger.With("component", "browser")}
}

// Warmup ensures a Chromium binary is available so the first capture does
// not pay for the download.
func (l *Launcher) Warmup(ctx context.Context) error {
	if l.cfg.ChromePath != "" {
		l.logger.Info("using custom Chrome path", "path", l.cfg.ChromePath)
		return nil
	}

	l.logger.Info("ensuring Chromium is available...")
	b := launcher.NewBrowser()
	b.Context = ctx
	path, err := b.Get()
	if err != nil {
		return fmt.Errorf("failed to fetch Chromium: %w", err)
	}
	l.logger.Info("Chromium ready", "path", path)
	return nil
}

// Launch starts a browser and connects to it.
func (l *Launcher) Launch(ctx context.Context, vp Viewport) (*Instance, error) {
	vp = vp.orDefault()

	lc := launcher.New().Context(ctx)
	if l.cfg.ChromePath != "" {
		lc = lc.Bin(l.cfg.ChromePath)
	}

	lc = lc.
		Headless(l.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-infobars").
		Set("disable-extensions").
		Set("disable-background-timer-throttling").
		Set("disable-renderer-backgrounding").
		Set("window-size", fmt.Sprintf("%d,%d", vp.Width, vp.Height)).
		Set("lang", "en-US,en")

	if l.cfg.ProxyURL != "" {
		lc = lc.Proxy(l.cfg.ProxyURL)
	}

	u, err := lc.Launch()
	if err != nil {
		lc.Kill()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().Context(ctx).ControlURL(u)
	if err := b.Connect(); err != nil {
		lc.Kill()
		lc.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	inst := &Instance{
		ID:        ulid.Make().String(),
		Browser:   b,
		CreatedAt: time.Now(),
		launcher:  lc,
		logger:    l.logger,
	}
	l.logger.Debug("browser launched", "id", inst.ID, "proxy", l.cfg.ProxyURL != "")
	return inst, nil
}
