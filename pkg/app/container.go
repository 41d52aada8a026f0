// Package app is the composition root: it wires configuration, stores,
// identity, the realtime gateway, the retention janitor and the HTTP
// server into one runnable unit.
package app

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/teamkard/teamkard/pkg/api"
	"github.com/teamkard/teamkard/pkg/backflow"
	"github.com/teamkard/teamkard/pkg/config"
	"github.com/teamkard/teamkard/pkg/github"
	"github.com/teamkard/teamkard/pkg/identity"
	"github.com/teamkard/teamkard/pkg/janitor"
	"github.com/teamkard/teamkard/pkg/kanban"
	"github.com/teamkard/teamkard/pkg/logger"
	"github.com/teamkard/teamkard/pkg/messenger"
	"github.com/teamkard/teamkard/pkg/realtime"
)

// Container holds the wired application. Built once at startup.
type Container struct {
	Config   *config.Config
	Boards   *kanban.Store
	Chats    *messenger.Store
	Registry *backflow.Registry
	Resolver identity.Resolver
	Gateway  *realtime.Gateway
	Janitor  *janitor.Janitor
	Server   *api.Server

	db *sql.DB
}

// NewContainer wires the application from its configuration. Both stores
// share one SQLite handle so cross-store reads see one database.
func NewContainer(cfg *config.Config) (*Container, error) {
	db, err := sql.Open("sqlite3", cfg.Database.Path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	boards, err := kanban.OpenDB(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init kanban store: %w", err)
	}
	chats, err := messenger.OpenDB(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init messenger store: %w", err)
	}

	resolver, err := identity.NewJWTResolver(cfg.Auth.JWTSecret, cfg.Auth.CacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init identity resolver: %w", err)
	}

	jan, err := janitor.New(chats, cfg.Retention.Schedule, cfg.Retention.MessageTTLDays)
	if err != nil {
		db.Close()
		return nil, err
	}

	registry := backflow.NewRegistry()
	gateway := realtime.NewGateway(registry, resolver, boards, chats)
	gh := github.NewClient(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret)
	server := api.NewServer(cfg, gateway, gh, resolver)

	return &Container{
		Config:   cfg,
		Boards:   boards,
		Chats:    chats,
		Registry: registry,
		Resolver: resolver,
		Gateway:  gateway,
		Janitor:  jan,
		Server:   server,
		db:       db,
	}, nil
}

// Start launches the background services.
func (c *Container) Start(ctx context.Context) error {
	go c.Janitor.Run(ctx)
	if err := c.Server.Start(ctx); err != nil {
		return fmt.Errorf("start api server: %w", err)
	}
	logger.InfoCF("app", "TeamKard started", map[string]interface{}{
		"addr": c.Config.Addr(),
		"db":   c.Config.Database.Path,
	})
	return nil
}

// Stop shuts the HTTP server down gracefully and closes the database.
// Background services stop via the context passed to Start.
func (c *Container) Stop() error {
	err := c.Server.Stop()
	if cerr := c.db.Close(); err == nil {
		err = cerr
	}
	logger.InfoC("app", "TeamKard stopped")
	return err
}
