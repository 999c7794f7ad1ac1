package document

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jmcleod/docproof/internal/util"
)

const (
	MaxTypeLength         = 64
	MaxPropertyNameLength = 256
	MaxPropertyCount      = 512
)

// ValidateType checks a document type name.
func ValidateType(name string) error {
	if name == "" {
		return validationErrorf("document type must not be empty")
	}
	if len(name) > MaxTypeLength {
		return validationErrorf("document type exceeds maximum length of %d", MaxTypeLength)
	}
	if !utf8.ValidString(name) {
		return validationErrorf("document type contains invalid UTF-8")
	}
	if !util.IsNormalized(name) {
		return validationErrorf("document type %q is not NFC normalized", name)
	}
	for _, r := range name {
		if r == '/' || r == '$' {
			return validationErrorf("document type contains forbidden character %q", r)
		}
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return validationErrorf("document type contains control or space character")
		}
	}
	return nil
}

// ValidatePropertyName checks a single property name. Names starting with
// "$" are reserved for system fields.
func ValidatePropertyName(name string) error {
	if name == "" {
		return validationErrorf("property name must not be empty")
	}
	if len(name) > MaxPropertyNameLength {
		return validationErrorf("property name exceeds maximum length of %d", MaxPropertyNameLength)
	}
	if !utf8.ValidString(name) {
		return validationErrorf("property name contains invalid UTF-8")
	}
	if strings.HasPrefix(name, "$") {
		return validationErrorf("property name %q uses the reserved $ prefix", name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return validationErrorf("property name contains control character")
		}
	}
	return nil
}

// Validate checks the structural invariants of d. Schema conformance is the
// caller's responsibility.
func Validate(d *Document) error {
	if d == nil {
		return validationErrorf("document must not be nil")
	}
	if d.ID.IsZero() {
		return validationErrorf("document id must be set")
	}
	if d.ContractID.IsZero() {
		return validationErrorf("contract id must be set")
	}
	if err := ValidateType(d.Type); err != nil {
		return err
	}
	if len(d.Properties) > MaxPropertyCount {
		return validationErrorf("property count %d exceeds maximum of %d", len(d.Properties), MaxPropertyCount)
	}
	for name := range d.Properties {
		if err := ValidatePropertyName(name); err != nil {
			return err
		}
	}
	if !d.UpdatedAt.IsZero() && !d.CreatedAt.IsZero() && d.UpdatedAt.Before(d.CreatedAt) {
		return validationErrorf("updatedAt precedes createdAt")
	}
	return nil
}
