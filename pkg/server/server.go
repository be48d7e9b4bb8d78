// Package server renders the summary of a result folder on demand over
// HTTP and serves the pages it links to.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/stressoor/pkg/config"
	"github.com/ethpandaops/stressoor/pkg/indexstore"
	"github.com/ethpandaops/stressoor/pkg/render"
	"github.com/ethpandaops/stressoor/pkg/summary"
)

const shutdownTimeout = 10 * time.Second

// FilesPrefix is the route serving raw files below the root.
const FilesPrefix = "/files"

// Server exposes the HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

// Options configures what the server scans and renders.
type Options struct {
	Root   string
	Parse  summary.ParseOptions
	Render render.Options
	// Index, when set, receives every scan and backs the index endpoints.
	Index indexstore.Store
}

type server struct {
	log        logrus.FieldLogger
	cfg        *config.ServerConfig
	opts       Options
	httpServer *http.Server
	limiter    *rateLimiterMap
	wg         sync.WaitGroup

	// scanMu serializes folder scans.
	scanMu sync.Mutex
}

// NewServer creates a new summary server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.ServerConfig,
	opts Options,
) Server {
	opts.Root = filepath.Clean(opts.Root)

	return &server{
		log:  log.WithField("component", "server"),
		cfg:  cfg,
		opts: opts,
	}
}

// Start binds the listener and serves in the background.
func (s *server) Start(_ context.Context) error {
	if s.cfg.RateLimit.Enabled {
		s.limiter = newRateLimiterMap(s.cfg.RateLimit.RequestsPerMinute)
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithFields(logrus.Fields{
			"listen": s.cfg.Listen,
			"root":   s.opts.Root,
		}).Info("Summary server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.limiter != nil {
		s.limiter.stop()
	}

	s.log.Info("Summary server stopped")

	return nil
}

// scan walks the root folder. Scans never overlap.
func (s *server) scan(ctx context.Context, opts summary.ParseOptions) (*summary.Collection, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	c, err := summary.Collect(s.log, s.opts.Root, opts)
	if err != nil {
		return nil, err
	}

	if s.opts.Index != nil {
		if _, err := s.opts.Index.IndexCollection(ctx, c); err != nil {
			s.log.WithError(err).Warn("Failed to index scan")
		}
	}

	return c, nil
}
