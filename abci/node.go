// Package abci serves a document repository over the abci_query JSON-RPC
// protocol.
package abci

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"golang.org/x/time/rate"

	"github.com/jmcleod/docproof/drive"
	"github.com/jmcleod/docproof/internal/util"
	"github.com/jmcleod/docproof/proof"
	"github.com/jmcleod/docproof/storage"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Node answers abci_query requests from a repository, the raw store behind
// it and a proof aggregator.
type Node struct {
	repo           *drive.Repository
	store          storage.RawStore
	agg            *proof.Aggregator
	limiter        *invalidQueryLimiter
	global         *rate.Limiter
	trustedProxies []netip.Prefix
	logger         *slog.Logger
	log            *queryLogger
}

// Option configures the node.
type Option func(*Node)

// WithLogger sets the structured logger for query logging.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithTrustedProxies sets the proxy ranges whose forwarding headers are
// honored when attributing a request to a client IP.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(n *Node) { n.trustedProxies = prefixes }
}

// WithRateLimit caps the node-wide query rate at rps requests per second
// with the given burst. A non-positive rps leaves the node unlimited.
func WithRateLimit(rps float64, burst int) Option {
	return func(n *Node) {
		if rps <= 0 {
			n.global = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		n.global = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a Node. agg may be nil, in which case one is built over the
// repository's store.
func New(repo *drive.Repository, store storage.RawStore, agg *proof.Aggregator, opts ...Option) *Node {
	n := &Node{
		repo:    repo,
		store:   store,
		agg:     agg,
		limiter: newInvalidQueryLimiter(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	n.log = newQueryLogger(n.logger)
	if n.agg == nil && repo != nil {
		n.agg = proof.NewAggregator(repo.Store(), n.logger)
	}
	return n
}

// Router returns a chi.Router with all node routes mounted.
func (n *Node) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Get("/health", n.Health)
	r.Post("/", n.Query)
	return r
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	RootHash string `json:"root_hash,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Health reports whether the store can compute its root commitment.
func (n *Node) Health(w http.ResponseWriter, r *http.Request) {
	root, err := n.repo.Store().RootHash(r.Context(), nil)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", RootHash: util.HexEncode(root)})
}
