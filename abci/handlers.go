package abci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/drive"
	"github.com/jmcleod/docproof/internal/jsonrpc"
	"github.com/jmcleod/docproof/internal/util"
	"github.com/jmcleod/docproof/proof"
	"github.com/jmcleod/docproof/query"
	"github.com/jmcleod/docproof/storage"
)

// maxRequestBytes bounds the size of a JSON-RPC request body.
const maxRequestBytes = 1 << 20

// Query handles POST / carrying an abci_query JSON-RPC call.
func (n *Node) Query(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ip := n.clientIP(r)
	if !n.allowGlobal() {
		n.log.rejected(r, ip, CodeRateLimited, "node busy")
		writeRateLimited(w, nil, time.Second, "node is over its request rate; try again later")
		return
	}
	if blocked, retryAfter := n.limiter.check(ip); blocked {
		n.log.rejected(r, ip, CodeRateLimited, "rate limited")
		writeRateLimited(w, nil, retryAfter, "too many invalid queries; try again later")
		return
	}

	reject := func(id json.RawMessage, code int, msg string) {
		n.limiter.recordFailure(ip)
		n.log.rejected(r, ip, code, msg)
		writeRPCError(w, http.StatusOK, id, code, msg)
	}

	var req jsonrpc.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		reject(nil, jsonrpc.CodeParseError, "parse error: "+err.Error())
		return
	}
	if req.JSONRPC != jsonrpc.Version || req.Method == "" {
		reject(req.ID, jsonrpc.CodeInvalidRequest, "invalid request")
		return
	}
	if req.Method != jsonrpc.MethodQuery {
		reject(req.ID, jsonrpc.CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
		return
	}
	var params jsonrpc.QueryParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		reject(req.ID, jsonrpc.CodeInvalidParams, "invalid params: "+err.Error())
		return
	}
	data, err := decodeData(params.Data)
	if err != nil {
		reject(req.ID, jsonrpc.CodeInvalidParams, "invalid params: "+err.Error())
		return
	}

	var resp jsonrpc.QueryResponse
	value, err := n.dispatch(r.Context(), params.Path, data, params.Prove)
	if err != nil {
		resp = queryResponse(err)
	} else {
		resp.Value = value
	}
	switch resp.Code {
	case storage.CodeOK:
		n.limiter.recordSuccess(ip)
	case storage.CodeInvalidArgument:
		n.limiter.recordFailure(ip)
	}
	n.log.query(r, ip, params, resp, time.Since(start))
	writeResult(w, req.ID, resp)
}

// decodeData parses the hex encoded CBOR map of a query. Empty data is an
// empty map.
func decodeData(s string) (map[string]any, error) {
	data := map[string]any{}
	if s == "" {
		return data, nil
	}
	raw, err := util.HexDecode(s)
	if err != nil {
		return nil, fmt.Errorf("data is not hex: %w", err)
	}
	if err := util.UnmarshalCanonical(raw, &data); err != nil {
		return nil, fmt.Errorf("data is not a CBOR map: %w", err)
	}
	return data, nil
}

func (n *Node) dispatch(ctx context.Context, path string, data map[string]any, prove bool) ([]byte, error) {
	switch path {
	case jsonrpc.PathDataContracts:
		return n.dataContract(ctx, data, prove)
	case jsonrpc.PathDocuments:
		return n.documents(ctx, data, prove)
	case jsonrpc.PathIdentities:
		return n.identity(ctx, data, prove)
	case jsonrpc.PathIdentitiesByPublicKeys:
		return n.identitiesByPublicKeyHashes(ctx, data, prove)
	case jsonrpc.PathProofs:
		return n.proofs(ctx, data)
	}
	return nil, &storage.InvalidQueryError{Message: fmt.Sprintf("unknown path %q", path)}
}

func invalidQuery(format string, args ...any) error {
	return &storage.InvalidQueryError{Message: fmt.Sprintf(format, args...)}
}

func idArg(data map[string]any, name string) (document.ID, error) {
	b, ok := data[name].([]byte)
	if !ok {
		return document.ID{}, invalidQuery("%s must be a byte string", name)
	}
	id, err := document.IDFromBytes(b)
	if err != nil {
		return document.ID{}, invalidQuery("%s: %v", name, err)
	}
	return id, nil
}

// lookup reads a raw value and renames a miss after the thing looked up.
func (n *Node) lookup(ctx context.Context, path storage.Path, key []byte, what string) ([]byte, error) {
	value, err := n.store.Get(ctx, path, key, nil)
	var nf *storage.NotFoundError
	if errors.As(err, &nf) {
		return nil, &storage.NotFoundError{What: what}
	}
	return value, err
}

func (n *Node) dataContract(ctx context.Context, data map[string]any, prove bool) ([]byte, error) {
	id, err := idArg(data, "id")
	if err != nil {
		return nil, err
	}
	if prove {
		res, err := n.agg.ProveDataContracts(ctx, []document.ID{id})
		return res.Value, err
	}
	return n.lookup(ctx, storage.ContractPath(id), storage.ContractStorageKey, "data contract "+id.String())
}

func (n *Node) documents(ctx context.Context, data map[string]any, prove bool) ([]byte, error) {
	rawID, docType, q, err := query.FromParams(data)
	if err != nil {
		return nil, err
	}
	contractID, err := document.IDFromBytes(rawID)
	if err != nil {
		return nil, invalidQuery("%s: %v", query.ParamContractID, err)
	}

	if prove {
		res, err := n.repo.Prove(ctx, contractID, docType, q, drive.Options{})
		if err != nil {
			return nil, err
		}
		return res.Value, nil
	}

	res, err := n.repo.Find(ctx, contractID, docType, q, drive.Options{})
	if err != nil {
		return nil, err
	}
	out := jsonrpc.DocumentsValue{
		Documents:     make([][]byte, len(res.Value)),
		ProcessingFee: res.TotalFee().ProcessingFee,
	}
	for i, doc := range res.Value {
		if out.Documents[i], err = document.Marshal(doc); err != nil {
			return nil, fmt.Errorf("serializing document %s: %w", doc.ID, err)
		}
	}
	return util.MarshalCanonical(out)
}

func (n *Node) identity(ctx context.Context, data map[string]any, prove bool) ([]byte, error) {
	id, err := idArg(data, "id")
	if err != nil {
		return nil, err
	}
	if prove {
		res, err := n.agg.ProveIdentities(ctx, []document.ID{id})
		return res.Value, err
	}
	return n.lookup(ctx, storage.IdentitiesPath(), id.Bytes(), "identity "+id.String())
}

// identitiesByPublicKeyHashes resolves unique public key hashes to
// identities. Without a proof, unknown hashes yield nil entries; a proof
// requires every hash to resolve.
func (n *Node) identitiesByPublicKeyHashes(ctx context.Context, data map[string]any, prove bool) ([]byte, error) {
	list, ok := data["publicKeyHashes"].([]any)
	if !ok || len(list) == 0 {
		return nil, invalidQuery("publicKeyHashes must be a non-empty list")
	}

	var (
		items      []proof.PublicKeyHashItem
		identities = make([][]byte, len(list))
	)
	for i, v := range list {
		hash, ok := v.([]byte)
		if !ok || len(hash) == 0 {
			return nil, invalidQuery("publicKeyHashes[%d] must be a non-empty byte string", i)
		}
		what := fmt.Sprintf("identity for public key hash %x", hash)
		rawID, err := n.lookup(ctx, storage.PublicKeyHashesPath(), hash, what)
		var nf *storage.NotFoundError
		if errors.As(err, &nf) && !prove {
			continue
		}
		if err != nil {
			return nil, err
		}
		id, err := document.IDFromBytes(rawID)
		if err != nil {
			return nil, &storage.BackendError{Kind: storage.KindProtocol, Message: fmt.Sprintf("%s: %v", what, err)}
		}
		if prove {
			items = append(items, proof.PublicKeyHashItem{Hash: hash, IdentityID: id})
			continue
		}
		identity, err := n.lookup(ctx, storage.IdentitiesPath(), id.Bytes(), "identity "+id.String())
		if err != nil {
			return nil, err
		}
		identities[i] = identity
	}

	if prove {
		res, err := n.agg.ProveIdentitiesByPublicKeyHashes(ctx, items)
		return res.Value, err
	}
	return util.MarshalCanonical(jsonrpc.IdentitiesValue{Identities: identities})
}

func (n *Node) proofs(ctx context.Context, data map[string]any) ([]byte, error) {
	req, err := proof.BundleRequestFromParams(data)
	if err != nil {
		return nil, invalidQuery("%v", err)
	}
	if len(req.Documents)+len(req.IdentityIDs)+len(req.DataContracts) == 0 {
		return nil, invalidQuery("no proofs requested")
	}
	res, err := n.agg.ProveBundle(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Value.Marshal()
}
