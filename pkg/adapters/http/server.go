// Package http exposes the document store and call flow sessions over HTTP.
package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/session"
	"github.com/go-chi/chi/v5"
)

// Server serves the store API, the session API and the lead index.
// Each part is mounted only when its dependency is configured.
type Server struct {
	store      ports.DocumentStore
	sessions   *session.Manager
	collection string
	metrics    http.Handler
	streams    *StreamManager
	logger     *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithStore mounts the store API over store.
func WithStore(store ports.DocumentStore) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithSessions mounts the session API over m.
func WithSessions(m *session.Manager) Option {
	return func(s *Server) {
		s.sessions = m
	}
}

// WithCollection sets the collection the lead index is read from.
func WithCollection(collection string) Option {
	return func(s *Server) {
		s.collection = collection
	}
}

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithStreams shares a StreamManager whose Observe method is wired into the
// engines, so /sessions/{id}/events receives their events.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.streams = sm
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler.
func NewHandler(opts ...Option) http.Handler {
	s := &Server{
		collection: callflow.DefaultCollection,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.streams == nil {
		s.streams = NewStreamManager()
	}
	return enableCORS(s.routes())
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	if s.store != nil {
		r.Get("/store", s.ListKeys)
		r.Get("/store/*", s.GetDocument)
		r.Head("/store/*", s.GetVersion)
		r.Put("/store/*", s.PutDocument)
		r.Get("/leads", s.ListLeads)
	}

	if s.sessions != nil {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.ListSessions)
			r.Post("/", s.OpenSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.GetSession)
				r.Delete("/", s.CloseSession)
				r.Get("/events", s.SubscribeEvents)
				r.Post("/navigate", s.Navigate)
				r.Post("/back", s.Back)
				r.Post("/start-over", s.StartOver)
				r.Post("/briefing", s.ToggleBriefing)
				r.Post("/edit", s.EnterEdit)
				r.Post("/edit/exit", s.ExitEdit)
				r.Post("/save", s.Save)
				r.Post("/reload", s.Reload)
				r.Patch("/node", s.EditNode)
				r.Put("/context", s.SetContext)
				r.Post("/branches", s.AddBranch)
				r.Patch("/branches/{index}", s.EditBranch)
				r.Delete("/branches/{index}", s.DeleteBranch)
				r.Get("/targets", s.RetargetOptions)
				r.Post("/nodes", s.AddNode)
			})
		})
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, If-Match, If-None-Match")
		w.Header().Set("Access-Control-Expose-Headers", "ETag")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Call Flow API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	} else if err != nil {
		s.logger.Error("failed to load OpenAPI spec", "err", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "callflow-http",
		"version":     strings.TrimSpace(callflow.Version),
		"api_version": apiVersion,
		"collection":  s.collection,
	})
}

// bearer extracts the credential of an Authorization: Bearer header.
func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
