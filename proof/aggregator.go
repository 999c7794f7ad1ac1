// Package proof assembles multi-path proofs over documents, identities and
// data contracts, and verifies them on the client side.
package proof

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/fees"
	"github.com/jmcleod/docproof/internal/util"
	"github.com/jmcleod/docproof/storage"
)

// DocumentItem addresses one document to prove.
type DocumentItem struct {
	ContractID   document.ID
	DocumentType string
	DocumentID   document.ID
}

// Path returns the primary-key tree path the item lives under.
func (i DocumentItem) Path() storage.Path {
	return storage.DocumentsPath(i.ContractID, i.DocumentType)
}

// Aggregator batches proof requests into single store calls.
type Aggregator struct {
	store  storage.DocumentStore
	logger *slog.Logger
}

// NewAggregator returns an Aggregator over store.
func NewAggregator(store storage.DocumentStore, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: store, logger: logger.With("component", "proof")}
}

func (a *Aggregator) proveMany(ctx context.Context, queries []storage.PathQuery) (fees.StorageResult[[]byte], error) {
	if len(queries) == 0 {
		return fees.StorageResult[[]byte]{}, errors.New("nothing to prove")
	}
	raw, sig, err := a.store.ProveQueryMany(ctx, queries, nil)
	if err != nil {
		return fees.StorageResult[[]byte]{}, err
	}
	a.logger.Debug("proof built", "paths", len(queries), "bytes", len(raw))
	return fees.NewResult(raw, fees.FromSignal(fees.KindProve, sig)), nil
}

// ProveManyDocumentsFromDifferentContracts proves every item in one store
// call. If any item is missing the whole call fails and no partial proof is
// returned.
func (a *Aggregator) ProveManyDocumentsFromDifferentContracts(ctx context.Context, items []DocumentItem) (fees.StorageResult[[]byte], error) {
	queries := make([]storage.PathQuery, len(items))
	for i, item := range items {
		queries[i] = storage.PathQuery{Path: item.Path(), Key: item.DocumentID.Bytes()}
	}
	return a.proveMany(ctx, queries)
}

// ProveIdentities proves the stored identities with the given ids.
func (a *Aggregator) ProveIdentities(ctx context.Context, ids []document.ID) (fees.StorageResult[[]byte], error) {
	queries := make([]storage.PathQuery, len(ids))
	for i, id := range ids {
		queries[i] = storage.PathQuery{Path: storage.IdentitiesPath(), Key: id.Bytes()}
	}
	return a.proveMany(ctx, queries)
}

// PublicKeyHashItem pairs a unique public key hash with the identity it
// resolves to.
type PublicKeyHashItem struct {
	Hash       []byte
	IdentityID document.ID
}

// ProveIdentitiesByPublicKeyHashes proves each hash-to-identity mapping and
// the identity it names in one store call, so a verifier can follow every
// hash to the identity returned for it.
func (a *Aggregator) ProveIdentitiesByPublicKeyHashes(ctx context.Context, items []PublicKeyHashItem) (fees.StorageResult[[]byte], error) {
	queries := make([]storage.PathQuery, 0, 2*len(items))
	seen := make(map[document.ID]bool, len(items))
	for _, item := range items {
		queries = append(queries, storage.PathQuery{Path: storage.PublicKeyHashesPath(), Key: item.Hash})
		if seen[item.IdentityID] {
			continue
		}
		seen[item.IdentityID] = true
		queries = append(queries, storage.PathQuery{Path: storage.IdentitiesPath(), Key: item.IdentityID.Bytes()})
	}
	return a.proveMany(ctx, queries)
}

// ProveDataContracts proves the stored data contracts with the given ids.
func (a *Aggregator) ProveDataContracts(ctx context.Context, ids []document.ID) (fees.StorageResult[[]byte], error) {
	queries := make([]storage.PathQuery, len(ids))
	for i, id := range ids {
		queries[i] = storage.PathQuery{Path: storage.ContractPath(id), Key: storage.ContractStorageKey}
	}
	return a.proveMany(ctx, queries)
}

// BundleRequest lists what a proof bundle covers. Empty sections are
// skipped.
type BundleRequest struct {
	Documents     []DocumentItem
	IdentityIDs   []document.ID
	DataContracts []document.ID
}

// Bundle groups the proofs answering a BundleRequest.
type Bundle struct {
	DocumentsProof     []byte `cbor:"documentsProof,omitempty"`
	IdentitiesProof    []byte `cbor:"identitiesProof,omitempty"`
	DataContractsProof []byte `cbor:"dataContractsProof,omitempty"`
}

// Marshal encodes b as canonical CBOR.
func (b *Bundle) Marshal() ([]byte, error) {
	return util.MarshalCanonical(b)
}

// DecodeBundle parses an encoded bundle.
func DecodeBundle(raw []byte) (*Bundle, error) {
	var b Bundle
	if err := util.UnmarshalCanonical(raw, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ProveBundle builds every requested section of a bundle.
func (a *Aggregator) ProveBundle(ctx context.Context, req BundleRequest) (fees.StorageResult[*Bundle], error) {
	var (
		b   Bundle
		ops []fees.Operation
	)
	sections := []struct {
		n   int
		dst *[]byte
		run func() (fees.StorageResult[[]byte], error)
	}{
		{len(req.Documents), &b.DocumentsProof, func() (fees.StorageResult[[]byte], error) {
			return a.ProveManyDocumentsFromDifferentContracts(ctx, req.Documents)
		}},
		{len(req.IdentityIDs), &b.IdentitiesProof, func() (fees.StorageResult[[]byte], error) {
			return a.ProveIdentities(ctx, req.IdentityIDs)
		}},
		{len(req.DataContracts), &b.DataContractsProof, func() (fees.StorageResult[[]byte], error) {
			return a.ProveDataContracts(ctx, req.DataContracts)
		}},
	}
	for _, s := range sections {
		if s.n == 0 {
			continue
		}
		res, err := s.run()
		if err != nil {
			return fees.StorageResult[*Bundle]{}, err
		}
		*s.dst = res.Value
		ops = append(ops, res.Operations...)
	}
	return fees.NewResult(&b, ops...), nil
}
