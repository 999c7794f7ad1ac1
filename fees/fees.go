// Package fees turns the raw cost signals reported by the store into fee
// results attached to every storage operation.
package fees

import (
	"github.com/jmcleod/docproof/document"
)

// Refunds maps the identity that originally paid for stored bytes to the
// credits returned to it.
type Refunds map[document.ID]uint64

// Total returns the sum of all refunded credits.
func (r Refunds) Total() uint64 {
	var total uint64
	for _, v := range r {
		total += v
	}
	return total
}

// FeeResult is the cost of one storage operation.
type FeeResult struct {
	StorageFee    uint64
	ProcessingFee uint64
	Refunds       Refunds
}

// Add returns the element-wise sum of f and o.
func (f FeeResult) Add(o FeeResult) FeeResult {
	out := FeeResult{
		StorageFee:    f.StorageFee + o.StorageFee,
		ProcessingFee: f.ProcessingFee + o.ProcessingFee,
	}
	if len(f.Refunds)+len(o.Refunds) > 0 {
		out.Refunds = make(Refunds, len(f.Refunds)+len(o.Refunds))
		for id, v := range f.Refunds {
			out.Refunds[id] += v
		}
		for id, v := range o.Refunds {
			out.Refunds[id] += v
		}
	}
	return out
}

// IsZero reports whether f charges and refunds nothing.
func (f FeeResult) IsZero() bool {
	return f.StorageFee == 0 && f.ProcessingFee == 0 && f.Refunds.Total() == 0
}

// Signal is the raw cost report a store returns with every call.
type Signal struct {
	StorageFee    uint64
	ProcessingFee uint64
	Refunds       Refunds
}

// OperationKind names what a fee-bearing operation did.
type OperationKind string

const (
	KindCreate OperationKind = "create"
	KindUpdate OperationKind = "update"
	KindDelete OperationKind = "delete"
	KindQuery  OperationKind = "query"
	KindProve  OperationKind = "prove"
)

// IsRead reports whether operations of this kind never write state.
func (k OperationKind) IsRead() bool {
	return k == KindQuery || k == KindProve
}

// Operation is one fee-bearing step performed to produce a StorageResult.
type Operation struct {
	Kind OperationKind
	Fee  FeeResult
}

// FromSignal wraps a store signal into an operation. Reads never carry a
// storage fee or refunds, whatever the signal says.
func FromSignal(kind OperationKind, sig Signal) Operation {
	fee := FeeResult{
		StorageFee:    sig.StorageFee,
		ProcessingFee: sig.ProcessingFee,
	}
	if kind.IsRead() {
		fee.StorageFee = 0
	} else if len(sig.Refunds) > 0 {
		fee.Refunds = make(Refunds, len(sig.Refunds))
		for id, v := range sig.Refunds {
			if v > 0 {
				fee.Refunds[id] = v
			}
		}
	}
	return Operation{Kind: kind, Fee: fee}
}

// StorageResult pairs a value with the ordered operations that produced it.
type StorageResult[T any] struct {
	Value      T
	Operations []Operation
}

// NewResult builds a StorageResult from a value and its operations.
func NewResult[T any](value T, ops ...Operation) StorageResult[T] {
	return StorageResult[T]{Value: value, Operations: ops}
}

// TotalFee sums the fees of every operation.
func (r StorageResult[T]) TotalFee() FeeResult {
	var total FeeResult
	for _, op := range r.Operations {
		total = total.Add(op.Fee)
	}
	return total
}
