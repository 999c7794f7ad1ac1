package client

import (
	"context"
	"fmt"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/internal/jsonrpc"
	"github.com/jmcleod/docproof/internal/util"
	"github.com/jmcleod/docproof/proof"
	"github.com/jmcleod/docproof/query"
)

// DocumentsResult is the decoded answer to a document query.
type DocumentsResult struct {
	// Documents holds the serialized documents in result order.
	Documents     [][]byte
	ProcessingFee uint64
}

// Decode parses every serialized document.
func (r *DocumentsResult) Decode() ([]*document.Document, error) {
	out := make([]*document.Document, len(r.Documents))
	for i, raw := range r.Documents {
		doc, err := document.Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		out[i] = doc
	}
	return out, nil
}

// FetchDataContract returns the serialized data contract with the given id.
func (c *Client) FetchDataContract(ctx context.Context, id document.ID) ([]byte, error) {
	return c.Request(ctx, jsonrpc.PathDataContracts, map[string]any{"id": id.Bytes()})
}

// FetchDocuments runs a document query. An empty response value is an empty
// result with zero cost.
func (c *Client) FetchDocuments(ctx context.Context, contractID []byte, docType string, q query.Query) (*DocumentsResult, error) {
	value, err := c.Request(ctx, jsonrpc.PathDocuments, query.Params(contractID, docType, q))
	if err != nil {
		return nil, err
	}
	res := &DocumentsResult{Documents: [][]byte{}}
	if len(value) == 0 {
		return res, nil
	}
	var v jsonrpc.DocumentsValue
	if err := util.UnmarshalCanonical(value, &v); err != nil {
		return nil, fmt.Errorf("decoding documents response: %w", err)
	}
	if v.Documents != nil {
		res.Documents = v.Documents
	}
	res.ProcessingFee = v.ProcessingFee
	return res, nil
}

// ProveDocuments runs a document query and returns the proof of its result.
func (c *Client) ProveDocuments(ctx context.Context, contractID []byte, docType string, q query.Query) ([]byte, error) {
	return c.Request(ctx, jsonrpc.PathDocuments, query.Params(contractID, docType, q), WithProve(true))
}

// FetchIdentity returns the serialized identity with the given id.
func (c *Client) FetchIdentity(ctx context.Context, id document.ID) ([]byte, error) {
	return c.Request(ctx, jsonrpc.PathIdentities, map[string]any{"id": id.Bytes()})
}

// FetchIdentitiesByPublicKeyHashes resolves unique public key hashes to
// serialized identities. Hashes without an identity yield nil entries.
func (c *Client) FetchIdentitiesByPublicKeyHashes(ctx context.Context, hashes [][]byte) ([][]byte, error) {
	list := make([]any, len(hashes))
	for i, h := range hashes {
		list[i] = h
	}
	value, err := c.Request(ctx, jsonrpc.PathIdentitiesByPublicKeys, map[string]any{"publicKeyHashes": list})
	if err != nil {
		return nil, err
	}
	if len(value) == 0 {
		return [][]byte{}, nil
	}
	var v jsonrpc.IdentitiesValue
	if err := util.UnmarshalCanonical(value, &v); err != nil {
		return nil, fmt.Errorf("decoding identities response: %w", err)
	}
	return v.Identities, nil
}

// FetchProofs requests a proof bundle.
func (c *Client) FetchProofs(ctx context.Context, req proof.BundleRequest) (*proof.Bundle, error) {
	value, err := c.Request(ctx, jsonrpc.PathProofs, req.Params())
	if err != nil {
		return nil, err
	}
	return proof.DecodeBundle(value)
}
