package callflow

import (
	"context"
	"log/slog"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/catalog"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/session"
)

// Version is the release of the callflow module.
const Version = "0.3.0"

// DefaultCollection is the collection used when none is configured.
const DefaultCollection = "callflows"

// Client is the high-level entry point for the callflow library.
// It holds the store collaborators and opens FlowSessions over them.
type Client struct {
	docs           ports.DocumentStore
	creds          ports.CredentialStore
	prompter       ports.CredentialPrompter
	history        ports.History
	collection     string
	exitEditOnSave bool
	logger         *slog.Logger
	observer       domain.Observer
}

// Option defines a functional option for configuring the Client.
type Option func(*Client)

// WithCollection sets the collection lead documents live under.
func WithCollection(collection string) Option {
	return func(c *Client) {
		c.collection = collection
	}
}

// WithPrompter sets how a missing write credential is requested.
func WithPrompter(p ports.CredentialPrompter) Option {
	return func(c *Client) {
		c.prompter = p
	}
}

// WithHistory publishes location tokens of opened flows to h.
func WithHistory(h ports.History) Option {
	return func(c *Client) {
		c.history = h
	}
}

// WithExitEditOnSave makes a successful save leave edit mode.
func WithExitEditOnSave(exit bool) Option {
	return func(c *Client) {
		c.exitEditOnSave = exit
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithObserver registers a callback for engine events.
func WithObserver(o domain.Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// New creates a Client over a document store and a credential store.
func New(docs ports.DocumentStore, creds ports.CredentialStore, opts ...Option) *Client {
	c := &Client{
		docs:       docs,
		creds:      creds,
		collection: DefaultCollection,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	c.logger = c.logger.With("collection", c.collection)
	return c
}

// Collection returns the configured collection.
func (c *Client) Collection() string {
	return c.collection
}

// SessionConfig returns the configuration FlowSessions are opened with.
func (c *Client) SessionConfig() session.Config {
	return session.Config{
		Docs:           c.docs,
		Creds:          c.creds,
		Prompter:       c.prompter,
		History:        c.history,
		Collection:     c.collection,
		ExitEditOnSave: c.exitEditOnSave,
		Logger:         c.logger,
		Observer:       c.observer,
	}
}

// Open loads the flow at location ("lead/<identity>[/<node>]") fresh from the store.
func (c *Client) Open(ctx context.Context, location string) (*session.FlowSession, error) {
	return session.Open(ctx, c.SessionConfig(), location)
}

// Index reads the subject index of the collection.
func (c *Client) Index(ctx context.Context) ([]domain.SubjectSummary, error) {
	return catalog.Load(ctx, c.docs, c.collection)
}

// NewManager creates a multi-session manager sharing this client's configuration.
func (c *Client) NewManager(opts ...session.Option) *session.Manager {
	opts = append([]session.Option{session.WithLogger(c.logger)}, opts...)
	return session.NewManager(c.SessionConfig(), opts...)
}
