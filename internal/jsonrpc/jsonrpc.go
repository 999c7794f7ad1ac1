// Package jsonrpc holds the envelope of the abci_query protocol shared by the
// query node and its client.
package jsonrpc

import "encoding/json"

const (
	Version     = "2.0"
	MethodQuery = "abci_query"
)

// Query paths served by a node.
const (
	PathDataContracts          = "/dataContracts"
	PathDocuments              = "/dataContracts/documents"
	PathIdentities             = "/identities"
	PathIdentitiesByPublicKeys = "/identities/by-public-key-hash"
	PathProofs                 = "/proofs"
)

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a JSON-RPC 2.0 call.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// QueryParams are the parameters of abci_query. Data is the hex encoding of
// a canonical CBOR map.
type QueryParams struct {
	Path  string `json:"path"`
	Data  string `json:"data"`
	Prove bool   `json:"prove"`
}

// Response is a JSON-RPC 2.0 reply; exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  *QueryResult    `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// QueryResult wraps the query response.
type QueryResult struct {
	Response QueryResponse `json:"response"`
}

// QueryResponse carries a status code and either a value or an info string.
// Value is base64 encoded on the wire.
type QueryResponse struct {
	Code  uint32 `json:"code,omitempty"`
	Value []byte `json:"value,omitempty"`
	Info  string `json:"info,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// DocumentsValue is the value returned for PathDocuments without a proof.
type DocumentsValue struct {
	Documents     [][]byte `cbor:"documents"`
	ProcessingFee uint64   `cbor:"processingFee"`
}

// IdentitiesValue is the value returned for PathIdentitiesByPublicKeys. Nil
// entries stand for hashes without an identity.
type IdentitiesValue struct {
	Identities [][]byte `cbor:"identities"`
}
