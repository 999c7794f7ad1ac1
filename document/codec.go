package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmcleod/docproof/internal/util"
)

// System field keys carried next to the document properties in the
// serialized form.
const (
	FieldID         = "$id"
	FieldContractID = "$dataContractId"
	FieldType       = "$type"
	FieldOwnerID    = "$ownerId"
	FieldRevision   = "$revision"
	FieldCreatedAt  = "$createdAt"
	FieldUpdatedAt  = "$updatedAt"
)

// Marshal serializes d as a canonical CBOR map. Properties sit at the top
// level next to the $-prefixed system fields.
func Marshal(d *Document) ([]byte, error) {
	m := make(map[string]any, len(d.Properties)+7)
	for k, v := range d.Properties {
		m[k] = v
	}
	m[FieldID] = d.ID[:]
	m[FieldContractID] = d.ContractID[:]
	m[FieldType] = d.Type
	m[FieldOwnerID] = d.OwnerID[:]
	m[FieldRevision] = d.Revision
	m[FieldCreatedAt] = timeToMillis(d.CreatedAt)
	m[FieldUpdatedAt] = timeToMillis(d.UpdatedAt)
	data, err := util.MarshalCanonical(m)
	if err != nil {
		return nil, fmt.Errorf("serializing document %s: %w", d.ID, err)
	}
	return data, nil
}

// Unmarshal decodes a document produced by Marshal.
func Unmarshal(data []byte) (*Document, error) {
	var m map[string]any
	if err := util.UnmarshalCanonical(data, &m); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return FromMap(m)
}

// FromMap builds a document from its decoded map form.
func FromMap(m map[string]any) (*Document, error) {
	d := &Document{Properties: make(map[string]any)}
	var err error
	if d.ID, err = idField(m, FieldID); err != nil {
		return nil, err
	}
	if d.ContractID, err = idField(m, FieldContractID); err != nil {
		return nil, err
	}
	if d.OwnerID, err = idField(m, FieldOwnerID); err != nil {
		return nil, err
	}
	t, ok := m[FieldType].(string)
	if !ok {
		return nil, validationErrorf("%s must be a string", FieldType)
	}
	d.Type = t
	if d.Revision, err = uintField(m, FieldRevision); err != nil {
		return nil, err
	}
	created, err := uintField(m, FieldCreatedAt)
	if err != nil {
		return nil, err
	}
	updated, err := uintField(m, FieldUpdatedAt)
	if err != nil {
		return nil, err
	}
	d.CreatedAt = millisToTime(created)
	d.UpdatedAt = millisToTime(updated)

	for k, v := range m {
		if strings.HasPrefix(k, "$") {
			continue
		}
		d.Properties[k] = v
	}
	return d, nil
}

// ContentHash returns the hex blake2b-256 digest of the serialized document.
func ContentHash(d *Document) (string, error) {
	data, err := Marshal(d)
	if err != nil {
		return "", err
	}
	sum := util.Hash(data)
	return util.HexEncode(sum[:]), nil
}

func idField(m map[string]any, key string) (ID, error) {
	b, ok := m[key].([]byte)
	if !ok {
		return ID{}, validationErrorf("%s must be a byte string", key)
	}
	return IDFromBytes(b)
}

func uintField(m map[string]any, key string) (uint64, error) {
	switch v := m[key].(type) {
	case nil:
		return 0, nil
	case uint64:
		return v, nil
	case int64:
		if v < 0 {
			return 0, validationErrorf("%s must not be negative", key)
		}
		return uint64(v), nil
	default:
		return 0, validationErrorf("%s must be an unsigned integer", key)
	}
}

func timeToMillis(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixMilli())
}

func millisToTime(ms uint64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}
