// Package cli wires configuration, stores and presentation for the callflow
// command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/config"
	"github.com/aretw0/callflow/pkg/adapters/file"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

// App bundles everything a command needs.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Backend *Backend
	Creds   ports.CredentialStore
}

// NewApp opens the backend selected by cfg.
func NewApp(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...BackendOption) (*App, error) {
	opts = append([]BackendOption{WithBackendLogger(logger)}, opts...)
	backend, err := OpenBackend(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	logger.Debug("store opened", "backend", cfg.Store.Backend, "collection", cfg.Collection)
	return &App{
		Config:  cfg,
		Logger:  logger,
		Backend: backend,
		Creds:   Credentials(cfg),
	}, nil
}

// Credentials returns the device credential slot configured by cfg.
func Credentials(cfg config.Config) ports.CredentialStore {
	return file.NewCredentials(cfg.CredentialsPath)
}

// Close releases the backend.
func (a *App) Close() error {
	return a.Backend.Close()
}

// Client creates a library client over the app's stores.
func (a *App) Client(opts ...callflow.Option) *callflow.Client {
	base := []callflow.Option{
		callflow.WithCollection(a.Config.Collection),
		callflow.WithExitEditOnSave(a.Config.ExitEditOnSave),
		callflow.WithLogger(a.Logger),
	}
	return callflow.New(a.Backend.Store, a.Creds, append(base, opts...)...)
}

// Document loads the lead document for identity.
func (a *App) Document(ctx context.Context, identity string) (*domain.FlowDocument, error) {
	obj, err := a.Backend.Store.Get(ctx, domain.LeadKey(a.Config.Collection, identity))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", identity, err)
	}
	return domain.ParseDocument(identity, obj.Body)
}

// NormalizeLocation accepts a bare identity, "identity/node" or a full
// "lead/identity[/node]" token and returns the full token.
func NormalizeLocation(arg string) string {
	arg = strings.TrimPrefix(strings.TrimSpace(arg), "#")
	if arg == "" || strings.HasPrefix(arg, domain.LocationPrefix+"/") {
		return arg
	}
	return domain.LocationPrefix + "/" + arg
}
