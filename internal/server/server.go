// Package server is the web surface of edalens: upload a table, pick an
// analysis mode, look at the charts and ask a language model about the data.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/schema"
	"github.com/rs/zerolog"

	"github.com/KaramelBytes/edalens/internal/ai"
	"github.com/KaramelBytes/edalens/internal/dataset"
)

//go:embed templates/*.html
var templateFS embed.FS

// AnalystFactory builds the language-model analyst for one request. apiKey
// is the key typed into the form, or the configured default.
type AnalystFactory func(apiKey string) ai.Analyst

// Config holds the server settings.
type Config struct {
	MaxUploadMB int
	SessionTTL  time.Duration
	// Load is applied to uploads; form fields override Separator, Encoding,
	// SheetName and SampleRows.
	Load dataset.Options
	// APIKey is used when the insights form leaves the key blank.
	APIKey string
	// ContextTokens bounds the dataset summary sent to the model.
	ContextTokens int
	// TopN and HistBins fill the selection when the request leaves them out.
	TopN     int
	HistBins int
}

func (c Config) maxUploadBytes() int64 {
	mb := c.MaxUploadMB
	if mb <= 0 {
		mb = 200
	}
	return int64(mb) << 20
}

// Server wires the session store, the analysis pipeline and the HTTP routes.
type Server struct {
	cfg        Config
	logger     *zerolog.Logger
	store      *Store
	metrics    *Metrics
	newAnalyst AnalystFactory
	decoder    *schema.Decoder
	views      *viewBuilder
	pages      *template.Template
	router     chi.Router
}

// New builds a server. A nil logger discards log output.
func New(cfg Config, logger *zerolog.Logger, newAnalyst AnalystFactory) (*Server, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	pages, err := template.New("pages").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	store := NewStore(cfg.SessionTTL)
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		metrics:    newMetrics(store),
		newAnalyst: newAnalyst,
		decoder:    decoder,
		views:      newViewBuilder(),
		pages:      pages,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Post("/upload", s.handleUpload)
	r.Route("/datasets/{id}", func(r chi.Router) {
		r.Get("/", s.handleDataset)
		r.Get("/view.json", s.handleViewJSON)
		r.Get("/charts/{n}", s.handleChart)
		r.Post("/insights", s.handleInsights)
		r.Post("/delete", s.handleDelete)
	})
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Store exposes the session store.
func (s *Server) Store() *Store { return s.store }

// Run serves on addr until ctx is cancelled, then shuts down gracefully. Idle
// datasets are evicted in the background while it runs.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	interval := s.cfg.SessionTTL / 4
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	go s.store.Janitor(ctx, interval, func(n int) {
		s.metrics.evicted.Add(float64(n))
		s.logger.Info().Int("evicted", n).Msg("expired datasets dropped")
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info().Str("addr", addr).Msg("listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

var templateFuncs = template.FuncMap{
	"add":  func(a, b int) int { return a + b },
	"list": func(v ...string) []string { return v },
	"num": func(f float64) string {
		if math.Abs(f) >= 1e6 || (f != 0 && math.Abs(f) < 1e-3) {
			return fmt.Sprintf("%.3g", f)
		}
		return fmt.Sprintf("%.2f", f)
	},
	"pct": func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
	// heat shades a correlation cell: blue for negative, red for positive.
	"heat": func(r float64) template.CSS {
		a := math.Min(math.Abs(r), 1)
		if r < 0 {
			return template.CSS(fmt.Sprintf("background-color: rgba(59,76,192,%.2f)", a))
		}
		return template.CSS(fmt.Sprintf("background-color: rgba(180,4,38,%.2f)", a))
	},
}
