package storage

import (
	"fmt"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/internal/util"
)

const envelopeVersion = 1

// Envelope is the stored form of a document: the serialized document plus
// the bookkeeping the store needs to check revisions and issue refunds.
type Envelope struct {
	Ver      int         `cbor:"ver"`
	Revision uint64      `cbor:"revision"`
	Payer    document.ID `cbor:"payer"`
	Data     []byte      `cbor:"data"`
}

// SealRecord serializes doc into an envelope recording payer as the identity
// that paid for its storage.
func SealRecord(doc *document.Document, payer document.ID) ([]byte, error) {
	data, err := document.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return util.MarshalCanonical(&Envelope{
		Ver:      envelopeVersion,
		Revision: doc.Revision,
		Payer:    payer,
		Data:     data,
	})
}

// OpenRecord decodes an envelope produced by SealRecord.
func OpenRecord(raw []byte) (*Envelope, *document.Document, error) {
	var env Envelope
	if err := util.UnmarshalCanonical(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("decoding record envelope: %w", err)
	}
	if env.Ver != envelopeVersion {
		return nil, nil, fmt.Errorf("unsupported envelope version: %d", env.Ver)
	}
	doc, err := document.Unmarshal(env.Data)
	if err != nil {
		return nil, nil, err
	}
	return &env, doc, nil
}
