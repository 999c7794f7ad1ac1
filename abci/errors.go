package abci

import (
	"encoding/json"
	"net/http"

	"github.com/jmcleod/docproof/internal/jsonrpc"
	"github.com/jmcleod/docproof/storage"
)

// CodeRateLimited is the JSON-RPC error code of a throttled request.
const CodeRateLimited = -32005

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRPCError(w http.ResponseWriter, status int, id json.RawMessage, code int, msg string) {
	writeJSON(w, status, jsonrpc.Response{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Error:   &jsonrpc.Error{Code: code, Message: msg},
	})
}

func writeResult(w http.ResponseWriter, id json.RawMessage, resp jsonrpc.QueryResponse) {
	writeJSON(w, http.StatusOK, jsonrpc.Response{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Result:  &jsonrpc.QueryResult{Response: resp},
	})
}

// queryResponse maps a failed query onto a response code and info string.
func queryResponse(err error) jsonrpc.QueryResponse {
	code, info := storage.WireMessage(err)
	return jsonrpc.QueryResponse{Code: code, Info: info}
}
