package abci

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jmcleod/docproof/internal/jsonrpc"
	"github.com/jmcleod/docproof/storage"
)

// queryLogger wraps slog.Logger for structured per-query logging.
type queryLogger struct {
	logger *slog.Logger
}

func newQueryLogger(logger *slog.Logger) *queryLogger {
	return &queryLogger{
		logger: logger.With("component", "abci"),
	}
}

// query logs an answered abci_query. Failed queries are logged at warn.
func (ql *queryLogger) query(r *http.Request, clientIP string, p jsonrpc.QueryParams, resp jsonrpc.QueryResponse, elapsed time.Duration) {
	level := slog.LevelInfo
	attrs := []slog.Attr{
		slog.String("path", p.Path),
		slog.Bool("prove", p.Prove),
		slog.String("client_ip", clientIP),
		slog.Uint64("code", uint64(resp.Code)),
		slog.Int("value_bytes", len(resp.Value)),
		slog.Duration("elapsed", elapsed),
	}
	if resp.Code != storage.CodeOK {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("info", resp.Info))
	}
	ql.logger.LogAttrs(r.Context(), level, "abci_query", attrs...)
}

// rejected logs a request answered with a JSON-RPC error object.
func (ql *queryLogger) rejected(r *http.Request, clientIP string, code int, reason string) {
	ql.logger.LogAttrs(r.Context(), slog.LevelWarn, "request rejected",
		slog.String("client_ip", clientIP),
		slog.Int("rpc_code", code),
		slog.String("reason", reason),
	)
}
