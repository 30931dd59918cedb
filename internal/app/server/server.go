// Package server assembles the analysis service and hosts its HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/quietloop/attune/internal/api"
	"github.com/quietloop/attune/internal/milestone"
	"github.com/quietloop/attune/internal/narrative"
	"github.com/quietloop/attune/internal/platform/timeouts"
	"github.com/quietloop/attune/internal/session"
	"github.com/quietloop/attune/internal/storage/bbolt"
	"github.com/quietloop/attune/internal/storage/sqlite"
	"github.com/quietloop/attune/internal/stream"
)

// Config defines the inputs for the analysis server.
type Config struct {
	Port int
	// DBPath is the sqlite database path.
	DBPath string
	// CheckpointPath enables durable session checkpoints when set.
	CheckpointPath string
	// OpenAIKey enables session narratives when set.
	OpenAIKey string
	// OpenAIModel selects the narrative model.
	OpenAIModel string
	// SessionIdleTimeout reaps sessions with no telemetry for this long.
	SessionIdleTimeout time.Duration
}

// Server hosts the analysis HTTP server and owns its collaborators.
type Server struct {
	listener    net.Listener
	httpServer  *http.Server
	store       *sqlite.Store
	checkpoints *bbolt.Store
	hub         *stream.Hub
	registry    *session.Registry
}

// New creates a configured server listening on the provided port.
func New(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	catalog, err := milestone.LoadCatalog()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load milestone catalog: %w", err)
	}

	var annotator narrative.Annotator = narrative.Noop{}
	if cfg.OpenAIKey != "" {
		client := openai.NewClient(option.WithAPIKey(cfg.OpenAIKey))
		annotator = narrative.NewOpenAI(&client, cfg.OpenAIModel)
	}

	var checkpoints *bbolt.Store
	if cfg.CheckpointPath != "" {
		checkpoints, err = bbolt.Open(cfg.CheckpointPath)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open checkpoint store: %w", err)
		}
	}

	hub := stream.NewHub(stream.Config{})
	registry, err := session.NewRegistry(session.Options{
		Store:       store,
		Hub:         hub,
		Catalog:     catalog,
		Annotator:   annotator,
		Checkpoints: checkpointStore(checkpoints),
		Config:      session.Config{IdleTimeout: cfg.SessionIdleTimeout},
	})
	if err != nil {
		hub.Close()
		closeCheckpoints(checkpoints)
		_ = store.Close()
		return nil, fmt.Errorf("build session registry: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		registry.Close()
		hub.Close()
		closeCheckpoints(checkpoints)
		_ = store.Close()
		return nil, fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}

	handler := api.NewHandler(api.Deps{
		Registry: registry,
		Store:    store,
		Hub:      hub,
		Catalog:  catalog,
	})
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	return &Server{
		listener:    listener,
		httpServer:  httpServer,
		store:       store,
		checkpoints: checkpoints,
		hub:         hub,
		registry:    registry,
	}, nil
}

// checkpointStore converts a possibly-nil concrete store to the registry's
// interface without producing a non-nil interface around a nil pointer.
func checkpointStore(store *bbolt.Store) session.CheckpointStore {
	if store == nil {
		return nil
	}
	return store
}

func closeCheckpoints(store *bbolt.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		log.Printf("close checkpoint store: %v", err)
	}
}

// Run creates and serves the analysis server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	defer server.Close()
	return server.Serve(ctx)
}

// Serve starts the HTTP server and blocks until it stops or the context
// ends. Heartbeats and the idle-session reaper run alongside.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if removed, err := s.registry.SweepOrphans(runCtx); err != nil {
		log.Printf("sweep orphan checkpoints: %v", err)
	} else if len(removed) > 0 {
		log.Printf("removed %d orphan session checkpoints", len(removed))
	}

	go s.hub.Run(runCtx)
	go s.registry.Run(runCtx)

	log.Printf("server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		shutdownCancel()
		<-serveErr
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		return handleErr(err)
	}
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close releases the server's resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.registry.Close()
	s.hub.Close()
	closeCheckpoints(s.checkpoints)
	if err := s.store.Close(); err != nil {
		log.Printf("close storage: %v", err)
	}
}
