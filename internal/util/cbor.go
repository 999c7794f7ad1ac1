package util

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	canonicalEnc cbor.EncMode
	canonicalDec cbor.DecMode
)

func init() {
	var err error
	// Canonical CBOR (RFC 7049 §3.9): length-first map key ordering, shortest
	// integer and float forms, no indefinite lengths.
	canonicalEnc, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor: building canonical encoder: %v", err))
	}
	canonicalDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		DupMapKey:      cbor.DupMapKeyEnforcedAPF,
		IndefLength:    cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor: building decoder: %v", err))
	}
}

// MarshalCanonical encodes v as canonical CBOR. Equal values always produce
// identical bytes, so the output is safe to hash and to commit into state.
func MarshalCanonical(v any) ([]byte, error) {
	return canonicalEnc.Marshal(v)
}

// UnmarshalCanonical decodes CBOR data into v. Untyped maps decode as
// map[string]any.
func UnmarshalCanonical(data []byte, v any) error {
	return canonicalDec.Unmarshal(data, v)
}
