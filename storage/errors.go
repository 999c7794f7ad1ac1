package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmcleod/docproof/document"
)

var (
	// ErrAlreadyExists is returned when creating a document whose identity is taken.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrTransactionBusy is returned when a transaction token is already in use.
	ErrTransactionBusy = errors.New("transaction is in use by another operation")
	// ErrTransactionClosed is returned when using a committed or rolled back transaction.
	ErrTransactionClosed = errors.New("transaction is closed")
)

// NotFoundError reports that the addressed document or value does not exist.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	if e.What == "" {
		return "not found"
	}
	return e.What + ": not found"
}

// RevisionConflictError reports an update whose revision is not the stored
// revision plus one.
type RevisionConflictError struct {
	ID       document.Identifier
	Stored   uint64
	Supplied uint64
}

func (e *RevisionConflictError) Error() string {
	return fmt.Sprintf("revision conflict for %s: stored %d, supplied %d", e.ID, e.Stored, e.Supplied)
}

// InvalidQueryError reports a malformed or unsupported query. Its message is
// surfaced to callers verbatim.
type InvalidQueryError struct {
	Message string
}

func (e *InvalidQueryError) Error() string {
	return e.Message
}

// StoreWriteError wraps a failure to persist a mutation.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	if e.Op == "" {
		return "store write failed: " + e.Err.Error()
	}
	return e.Op + ": store write failed: " + e.Err.Error()
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// Kind classifies a backend failure at its source.
type Kind int

const (
	KindInternal Kind = iota
	KindQuery
	KindStructure
	KindContract
	KindProtocol
	KindNotFound
)

var kindNames = map[Kind]string{
	KindInternal:  "internal",
	KindQuery:     "query",
	KindStructure: "structure",
	KindContract:  "contract",
	KindProtocol:  "protocol",
	KindNotFound:  "not found",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// BackendError is a failure raised inside the store or reported by a remote
// node. Code is the wire status code when the error crossed the network.
type BackendError struct {
	Kind    Kind
	Code    uint32
	Message string
}

func (e *BackendError) Error() string {
	if p := prefixFor(e.Kind); p != "" {
		return p + " " + e.Message
	}
	return e.Message
}

// backendPrefixes is the only place message prefixes are mapped to kinds.
// Both the node (when rendering info strings) and the client (when parsing
// them) go through it.
var backendPrefixes = []struct {
	prefix string
	kind   Kind
}{
	{"query:", KindQuery},
	{"structure:", KindStructure},
	{"contract:", KindContract},
	{"protocol:", KindProtocol},
}

func prefixFor(k Kind) string {
	for _, p := range backendPrefixes {
		if p.kind == k {
			return p.prefix
		}
	}
	return ""
}

func matchPrefix(msg string) (Kind, string, bool) {
	for _, p := range backendPrefixes {
		if rest, ok := strings.CutPrefix(msg, p.prefix); ok {
			return p.kind, strings.TrimLeft(rest, " "), true
		}
	}
	return KindInternal, msg, false
}

// Wire status codes used by the query protocol.
const (
	CodeOK              uint32 = 0
	CodeInvalidArgument uint32 = 3
	CodeNotFound        uint32 = 5
	CodeInternal        uint32 = 13
)

// ParseBackendMessage turns a nonzero wire code and its info string into an
// error. Prefixed messages become *BackendError of the matching kind with the
// prefix stripped; CodeNotFound becomes *NotFoundError.
func ParseBackendMessage(code uint32, info string) error {
	if kind, msg, ok := matchPrefix(info); ok {
		return &BackendError{Kind: kind, Code: code, Message: msg}
	}
	if code == CodeNotFound {
		return &NotFoundError{What: strings.TrimSuffix(info, ": not found")}
	}
	return &BackendError{Kind: KindInternal, Code: code, Message: info}
}

// WireMessage renders err as a wire code and info string that
// ParseBackendMessage understands.
func WireMessage(err error) (uint32, string) {
	var (
		iq *InvalidQueryError
		nf *NotFoundError
		be *BackendError
	)
	switch {
	case errors.As(err, &iq):
		return CodeInvalidArgument, prefixFor(KindQuery) + " " + iq.Message
	case errors.As(err, &nf):
		return CodeNotFound, nf.Error()
	case errors.As(err, &be):
		switch be.Kind {
		case KindNotFound:
			return CodeNotFound, be.Message
		case KindInternal:
			return CodeInternal, be.Message
		}
		return CodeInvalidArgument, be.Error()
	}
	return CodeInternal, err.Error()
}

// Reclassification selects which backend kinds Classify turns into
// *InvalidQueryError.
type Reclassification []Kind

var (
	// ReclassifyFind is applied to document queries.
	ReclassifyFind = Reclassification{KindQuery, KindStructure, KindContract, KindProtocol}
	// ReclassifyProve is applied to document proofs. Protocol errors stay
	// backend errors here.
	ReclassifyProve = Reclassification{KindQuery, KindStructure, KindContract}
)

func (r Reclassification) has(k Kind) bool {
	for _, v := range r {
		if v == k {
			return true
		}
	}
	return false
}

// Classify converts backend errors of the selected kinds into
// *InvalidQueryError carrying the message without its prefix. Typed backend
// errors are matched by kind, untyped ones by message prefix. Anything else
// is returned unchanged.
func Classify(err error, r Reclassification) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		if r.has(be.Kind) {
			return &InvalidQueryError{Message: be.Message}
		}
		return err
	}
	var iq *InvalidQueryError
	if errors.As(err, &iq) {
		return err
	}
	if kind, msg, ok := matchPrefix(err.Error()); ok && r.has(kind) {
		return &InvalidQueryError{Message: msg}
	}
	return err
}
