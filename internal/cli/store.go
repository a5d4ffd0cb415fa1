package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/callflow/internal/config"
	"github.com/aretw0/callflow/internal/gate"
	"github.com/aretw0/callflow/pkg/adapters/file"
	loamstore "github.com/aretw0/callflow/pkg/adapters/loam"
	"github.com/aretw0/callflow/pkg/adapters/memory"
	redisstore "github.com/aretw0/callflow/pkg/adapters/redis"
	"github.com/aretw0/callflow/pkg/adapters/remote"
	"github.com/aretw0/callflow/pkg/adapters/s3"
	"github.com/aretw0/callflow/pkg/adapters/sqlstore"
	"github.com/aretw0/callflow/pkg/observability"
	"github.com/aretw0/callflow/pkg/persistence/middleware"
	"github.com/aretw0/callflow/pkg/ports"
)

// Backend is an opened document store plus the collaborators that come with it.
type Backend struct {
	// Store is the fully wrapped store (metrics, auth, encryption).
	Store ports.DocumentStore
	// Locker serialises saves across replicas. Nil unless the backend provides one.
	Locker  ports.DistributedLocker
	Metrics *observability.Metrics

	closers []func() error
}

// Close releases backend connections.
func (b *Backend) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// BackendOption configures OpenBackend.
type BackendOption func(*backendOptions)

type backendOptions struct {
	metrics *observability.Metrics
	enforce bool
	logger  *slog.Logger
}

// WithMetrics records store operations into m.
func WithMetrics(m *observability.Metrics) BackendOption {
	return func(o *backendOptions) { o.metrics = m }
}

// WithWriteAuth rejects writes whose credential is not in the configured
// write tokens. Only servers enforce it; clients pass credentials through.
func WithWriteAuth() BackendOption {
	return func(o *backendOptions) { o.enforce = true }
}

// WithBackendLogger sets the logger used while opening the backend.
func WithBackendLogger(l *slog.Logger) BackendOption {
	return func(o *backendOptions) { o.logger = l }
}

// OpenBackend opens the store selected by cfg.Store.Backend and wraps it with
// the configured middleware. The outermost layer is metrics, then auth, then
// encryption next to the raw store.
func OpenBackend(ctx context.Context, cfg config.Config, opts ...BackendOption) (*Backend, error) {
	o := backendOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Backend{Metrics: o.metrics}
	sc := cfg.Store

	var raw ports.DocumentStore
	switch sc.Backend {
	case config.BackendMemory:
		raw = memory.NewStore()
	case "", config.BackendFile:
		raw = file.New(sc.Dir)
	case config.BackendLoam:
		s, err := loamstore.New(sc.Dir, loamstore.WithVersioning(sc.LoamVersioning))
		if err != nil {
			return nil, err
		}
		raw = s
	case config.BackendRedis:
		rs := redisstore.New(sc.RedisAddr, sc.RedisPassword, sc.RedisDB, redisstore.WithPrefix(sc.RedisPrefix))
		if err := rs.Client().Ping(ctx).Err(); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", sc.RedisAddr, err)
		}
		raw = rs
		b.Locker = redisstore.NewLocker(rs.Client(), sc.RedisPrefix)
		b.closers = append(b.closers, rs.Close)
	case config.BackendPostgres:
		s, err := sqlstore.OpenPostgres(ctx, sc.DatabaseURL)
		if err != nil {
			return nil, err
		}
		raw = s
		b.closers = append(b.closers, s.Close)
	case config.BackendSQLite:
		s, err := sqlstore.OpenSQLite(ctx, sc.SQLitePath)
		if err != nil {
			return nil, err
		}
		raw = s
		b.closers = append(b.closers, s.Close)
	case config.BackendS3:
		s, err := s3.New(ctx, s3.Config{
			Endpoint:  sc.S3.Endpoint,
			AccessKey: sc.S3.AccessKey,
			SecretKey: sc.S3.SecretKey,
			Bucket:    sc.S3.Bucket,
			Region:    sc.S3.Region,
			Prefix:    sc.S3.Prefix,
			UseSSL:    sc.S3.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		raw = s
	case config.BackendRemote:
		raw = remote.New(sc.RemoteURL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}

	var mws []middleware.Middleware
	if o.metrics != nil {
		mws = append(mws, middleware.NewMetricsMiddleware(o.metrics))
	}
	if o.enforce {
		switch {
		case len(cfg.WriteTokenHashes) > 0:
			hashes := append(hashAll(cfg.WriteTokens), cfg.WriteTokenHashes...)
			mws = append(mws, middleware.NewVerifierMiddleware(gate.Verifier(hashes...)))
		case len(cfg.WriteTokens) > 0:
			mws = append(mws, middleware.NewAuthMiddleware(cfg.WriteTokens...))
		case o.logger != nil:
			o.logger.Warn("no write tokens configured, the store accepts any write")
		}
	}
	active, fallback, err := cfg.EncryptionKeys()
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	if active != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		}))
	}

	b.Store = middleware.Chain(raw, mws...)
	return b, nil
}

func hashAll(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, gate.HashSHA256(t))
	}
	return out
}
