package proof

import (
	"fmt"

	"github.com/jmcleod/docproof/document"
)

// Wire parameter names of a /proofs request.
const (
	ParamDocuments       = "documents"
	ParamIdentityIDs     = "identityIds"
	ParamDataContractIDs = "dataContractIds"

	paramContractID = "contractId"
	paramDocumentID = "documentId"
	paramType       = "type"
)

// Params renders req as a wire parameter map. Empty sections are omitted.
func (req BundleRequest) Params() map[string]any {
	out := make(map[string]any)
	if len(req.Documents) > 0 {
		docs := make([]any, len(req.Documents))
		for i, d := range req.Documents {
			docs[i] = map[string]any{
				paramContractID: d.ContractID.Bytes(),
				paramDocumentID: d.DocumentID.Bytes(),
				paramType:       d.DocumentType,
			}
		}
		out[ParamDocuments] = docs
	}
	if len(req.IdentityIDs) > 0 {
		out[ParamIdentityIDs] = idList(req.IdentityIDs)
	}
	if len(req.DataContracts) > 0 {
		out[ParamDataContractIDs] = idList(req.DataContracts)
	}
	return out
}

func idList(ids []document.ID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id.Bytes()
	}
	return out
}

// BundleRequestFromParams parses a /proofs parameter map.
func BundleRequestFromParams(params map[string]any) (BundleRequest, error) {
	var req BundleRequest
	if raw, ok := params[ParamDocuments]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return req, fmt.Errorf("%s must be a list", ParamDocuments)
		}
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return req, fmt.Errorf("%s[%d] must be a map", ParamDocuments, i)
			}
			cid, err := idParam(m[paramContractID])
			if err != nil {
				return req, fmt.Errorf("%s[%d].%s: %w", ParamDocuments, i, paramContractID, err)
			}
			did, err := idParam(m[paramDocumentID])
			if err != nil {
				return req, fmt.Errorf("%s[%d].%s: %w", ParamDocuments, i, paramDocumentID, err)
			}
			docType, ok := m[paramType].(string)
			if !ok {
				return req, fmt.Errorf("%s[%d].%s must be a string", ParamDocuments, i, paramType)
			}
			req.Documents = append(req.Documents, DocumentItem{ContractID: cid, DocumentType: docType, DocumentID: did})
		}
	}

	var err error
	if req.IdentityIDs, err = idListParam(params, ParamIdentityIDs); err != nil {
		return req, err
	}
	if req.DataContracts, err = idListParam(params, ParamDataContractIDs); err != nil {
		return req, err
	}
	return req, nil
}

func idParam(v any) (document.ID, error) {
	b, ok := v.([]byte)
	if !ok {
		return document.ID{}, fmt.Errorf("must be a byte string")
	}
	return document.IDFromBytes(b)
}

func idListParam(params map[string]any, name string) ([]document.ID, error) {
	raw, ok := params[name]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a list", name)
	}
	out := make([]document.ID, len(list))
	for i, v := range list {
		id, err := idParam(v)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		out[i] = id
	}
	return out, nil
}
