package fakemock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// idPrefixes follows Stripe's object id prefixes for the resources that are
// commonly exercised. Unknown resources fall back to the resource name.
var idPrefixes = map[string]string{
	"charge":         "ch",
	"customer":       "cus",
	"invoice":        "in",
	"payment_intent": "pi",
	"payment_method": "pm",
	"price":          "price",
	"product":        "prod",
	"refund":         "re",
	"subscription":   "sub",
}

// Server serves fixture objects over a subset of the Stripe REST API.
type Server struct {
	cfg      *Config
	fixtures Fixtures
	logger   *slog.Logger

	mu      sync.Mutex
	created int

	srv *http.Server
	ln  net.Listener
	wg  sync.WaitGroup

	started bool
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer validates cfg and loads the files it points to.
func NewServer(cfg *Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkSpec(cfg.SpecPath); err != nil {
		return nil, err
	}
	fixtures, err := LoadFixtures(cfg.FixturesPath)
	if err != nil {
		return nil, err
	}
	srv := &Server{
		cfg:      cfg,
		fixtures: fixtures,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv, nil
}

// Start begins serving HTTP requests in the background.
func (s *Server) Start() error {
	if s.started {
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/", s.handleResource)

	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.started = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server stopped.", slog.Any("err", err))
		}
	}()
	return nil
}

// Run starts the server and blocks until the provided context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	s.logger.Info("Serving.", slog.String("addr", s.Addr()))
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// WaitReady polls the health endpoint until the server responds or the context
// is cancelled.
func (s *Server) WaitReady(ctx context.Context) error {
	if !s.started {
		return errors.New("server not started")
	}
	url := fmt.Sprintf("http://%s/healthz", s.Addr())
	client := &http.Client{Timeout: 200 * time.Millisecond}
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		res, err := client.Do(req)
		if err == nil {
			res.Body.Close() //nolint:errcheck
			if res.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.started {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	s.wg.Wait()
	s.started = false
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	remainder := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/"), "/")
	collection, id, _ := strings.Cut(remainder, "/")
	if collection == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unrecognized request URL (%s %s).", r.Method, r.URL.Path))
		return
	}
	name := strings.TrimSuffix(collection, "s")
	fixture, ok := s.fixtures[name]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unrecognized request URL (%s %s).", r.Method, r.URL.Path))
		return
	}

	switch {
	case id == "" && r.Method == http.MethodGet:
		writeJSON(w, map[string]any{
			"object":   "list",
			"data":     []any{fixture},
			"has_more": false,
			"url":      "/v1/" + collection,
		})
	case id == "" && r.Method == http.MethodPost:
		writeJSON(w, withID(fixture, s.nextID(name)))
	case id != "" && r.Method == http.MethodGet:
		writeJSON(w, withID(fixture, id))
	case id == "":
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	default:
		methodNotAllowed(w, http.MethodGet)
	}
}

func (s *Server) nextID(name string) string {
	s.mu.Lock()
	s.created++
	s.mu.Unlock()

	prefix, ok := idPrefixes[name]
	if !ok {
		prefix = name
	}
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// Created reports how many objects were created through POST requests.
func (s *Server) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

func withID(fixture map[string]any, id string) map[string]any {
	clone := maps.Clone(fixture)
	clone["id"] = id
	return clone
}

func methodNotAllowed(w http.ResponseWriter, methods ...string) {
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"type":    "invalid_request_error",
			"message": message,
		},
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf("encode response: %v", err), http.StatusInternalServerError)
	}
}
