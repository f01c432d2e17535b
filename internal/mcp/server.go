// Package mcp exposes the gateway's tool surface over the Model Context
// Protocol. Every tool call runs the same spine: admit against the
// session budget, perform the bounded operation, scrub the output, charge
// the bytes, and append a provenance entry. Violating a bound fails the
// call whole; nothing is ever truncated to fit.
package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
	"github.com/fyrsmithlabs/boundaryd/internal/sandbox"
	"github.com/fyrsmithlabs/boundaryd/internal/search"
	"github.com/fyrsmithlabs/boundaryd/internal/secrets"
	"github.com/fyrsmithlabs/boundaryd/internal/session"
)

// Server is the MCP server. It owns no session state itself; everything
// per-session lives in the session manager.
type Server struct {
	mcp      *mcp.Server
	sessions *session.Manager
	index    *search.Index
	runner   *sandbox.Runner
	profile  *sandbox.Profile
	scrubber secrets.Scrubber
	metrics  *Metrics
	logger   *zap.Logger

	maxListItems     int
	maxSearchResults int
	watchRoots       bool

	mu       sync.Mutex
	watchers map[string]*search.Watcher
	indexed  map[string]bool
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name.
	Name string

	// Version is the server version.
	Version string

	// Logger for structured logging.
	Logger *zap.Logger

	// MaxListItems bounds listing and manifest result sizes.
	MaxListItems int

	// MaxSearchResults bounds search result sets.
	MaxSearchResults int

	// WatchRoots keeps the semantic index current via filesystem watches.
	WatchRoots bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:             "boundaryd",
		Version:          "1.0.0",
		Logger:           zap.NewNop(),
		MaxListItems:     1000,
		MaxSearchResults: 10,
		WatchRoots:       true,
	}
}

// NewServer creates the MCP server with the given services. index may be
// nil when semantic search is disabled; everything else is required.
func NewServer(
	cfg *Config,
	sessions *session.Manager,
	index *search.Index,
	runner *sandbox.Runner,
	profile *sandbox.Profile,
	scrubber secrets.Scrubber,
) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("sandbox runner is required")
	}
	if profile == nil {
		profile = sandbox.StrictProfile()
	}
	if scrubber == nil {
		return nil, fmt.Errorf("scrubber is required")
	}
	if cfg.MaxListItems <= 0 || cfg.MaxListItems > 1000 {
		cfg.MaxListItems = 1000
	}
	if cfg.MaxSearchResults <= 0 || cfg.MaxSearchResults > 10 {
		cfg.MaxSearchResults = 10
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:              mcpServer,
		sessions:         sessions,
		index:            index,
		runner:           runner,
		profile:          profile,
		scrubber:         scrubber,
		metrics:          NewMetrics(cfg.Logger),
		logger:           cfg.Logger,
		maxListItems:     cfg.MaxListItems,
		maxSearchResults: cfg.MaxSearchResults,
		watchRoots:       cfg.WatchRoots,
		watchers:         make(map[string]*search.Watcher),
		indexed:          make(map[string]bool),
	}

	s.registerTools()
	return s, nil
}

// Run serves MCP on the stdio transport until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Close stops root watchers. Session teardown belongs to the manager.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for root, w := range s.watchers {
		w.Stop()
		delete(s.watchers, root)
	}
	return nil
}

func (s *Server) registerTools() {
	s.registerSessionTools()
	s.registerFSTools()
	s.registerSearchTools()
	s.registerExecTools()
}

// ensureIndexed builds the semantic index for a root the first time a
// session exposes it, and starts a watcher to keep it current. Indexing
// runs in the background so session creation stays fast.
func (s *Server) ensureIndexed(root string) {
	if s.index == nil {
		return
	}

	s.mu.Lock()
	already := s.indexed[root]
	s.indexed[root] = true
	s.mu.Unlock()
	if already {
		return
	}

	go func() {
		ctx := context.Background()
		if _, err := s.index.IndexRoot(ctx, root); err != nil {
			s.logger.Warn("background indexing failed",
				zap.String("root", root), zap.Error(err))
		}
		if !s.watchRoots {
			return
		}

		w, err := search.NewWatcher(s.index, root, s.logger)
		if err != nil {
			s.logger.Warn("watcher creation failed",
				zap.String("root", root), zap.Error(err))
			return
		}
		if err := w.Start(ctx); err != nil {
			s.logger.Warn("watcher start failed",
				zap.String("root", root), zap.Error(err))
			return
		}

		s.mu.Lock()
		s.watchers[root] = w
		s.mu.Unlock()
	}()
}

// scrub redacts secrets from outbound content.
func (s *Server) scrub(content string) string {
	cleaned, _ := s.scrubber.Scrub(content)
	return cleaned
}

// outcome labels a ledger entry by the error's gateway code.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(fault.CodeOf(err))
}
