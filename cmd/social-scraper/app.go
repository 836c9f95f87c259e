package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/justmadeid/social-services/internal/browser"
	"github.com/justmadeid/social-services/internal/cache"
	"github.com/justmadeid/social-services/internal/config"
	"github.com/justmadeid/social-services/internal/credentials"
	"github.com/justmadeid/social-services/internal/database"
	"github.com/justmadeid/social-services/internal/logging"
	"github.com/justmadeid/social-services/internal/scraper"
	"github.com/justmadeid/social-services/internal/session"
)

var errNoEncryptionKey = errors.New("ENCRYPTION_KEY is required to store or use credentials")

// app holds the process-wide collaborators. The database and credential
// store are always open; the browser side is built on first use.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db        *sql.DB
	isMemory  bool
	credStore *credentials.SQLiteStore
	creds     *credentials.Service

	cacheStore *cache.BadgerStore
	launcher   *browser.Launcher
	sessions   *session.Store
	engine     *scraper.Engine
}

func openApp(opts *rootOptions) (*app, error) {
	config.LoadDotEnv()
	cfg := config.Load()
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.SetDefault(logging.Options{Level: cfg.LogLevel})

	db, isMemory, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	credStore, err := credentials.NewSQLiteStore(db, isMemory, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		isMemory:  isMemory,
		credStore: credStore,
		creds:     credentials.NewService(credStore, cfg.EncryptionKey, logger),
	}, nil
}

// credentialProvider returns the stored-credential source for automatic
// logins, or nil when no encryption key is configured.
func (a *app) credentialProvider() session.CredentialProvider {
	if a.cfg.EncryptionKey == "" {
		return nil
	}
	return a.creds
}

// Engine builds the browser, session and cache layers on first call.
func (a *app) Engine() (*scraper.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}

	statePath := session.Locate(a.cfg.StateDir, session.DefaultCandidates(), a.cfg.StateFileName)
	a.logger.Debug("session state file", "path", statePath)

	a.launcher = browser.NewLauncher(a.cfg, a.logger)
	a.sessions = session.NewStore(statePath, browser.NewLoginFlow(a.launcher, a.cfg, a.logger), a.credentialProvider(), a.logger)

	store, err := cache.OpenBadger(a.cfg.CacheDir, a.logger)
	if err != nil {
		return nil, err
	}
	a.cacheStore = store

	c := cache.New(store, cache.TTLs{
		UserData:     a.cfg.CacheTTLUserData,
		TimelineData: a.cfg.CacheTTLTimelineData,
		TaskResult:   a.cfg.CacheTTLTaskResult,
	}, a.logger)

	a.engine = scraper.New(scraper.Deps{
		Config:   a.cfg,
		Cache:    c,
		Sessions: a.sessions,
		Capturer: browser.NewSession(a.launcher, a.cfg, a.logger),
		Logger:   a.logger,
	})
	return a.engine, nil
}

func (a *app) Close() {
	if a.cacheStore != nil {
		if err := a.cacheStore.Close(); err != nil {
			a.logger.Warn("failed to close cache", "error", err)
		}
	}
	if err := a.credStore.Close(); err != nil {
		a.logger.Warn("failed to close credential store", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}
