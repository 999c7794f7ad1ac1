package storage

import (
	"sync/atomic"
)

// Transaction is an owned handle to an open store transaction. The store that
// created it keeps its state in Handle; callers only pass the token around.
//
// A token serves one operation at a time: Acquire fails with
// ErrTransactionBusy while another operation holds it, and with
// ErrTransactionClosed once it has been committed or rolled back.
type Transaction struct {
	id     uint64
	handle any
	busy   atomic.Bool
	closed atomic.Bool
}

var txCounter atomic.Uint64

// NewTransaction wraps store-owned state in a fresh token.
func NewTransaction(handle any) *Transaction {
	return &Transaction{id: txCounter.Add(1), handle: handle}
}

// ID returns a process-unique number identifying the transaction.
func (t *Transaction) ID() uint64 { return t.id }

// Handle returns the store-owned state passed to NewTransaction.
func (t *Transaction) Handle() any { return t.handle }

// Acquire marks the token as in use by the calling operation.
func (t *Transaction) Acquire() error {
	if t.closed.Load() {
		return ErrTransactionClosed
	}
	if !t.busy.CompareAndSwap(false, true) {
		return ErrTransactionBusy
	}
	if t.closed.Load() {
		t.busy.Store(false)
		return ErrTransactionClosed
	}
	return nil
}

// Release ends the operation started by Acquire.
func (t *Transaction) Release() {
	t.busy.Store(false)
}

// Close marks the transaction finished. It fails if the token was already
// closed.
func (t *Transaction) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return ErrTransactionClosed
	}
	return nil
}

// Closed reports whether the transaction was committed or rolled back.
func (t *Transaction) Closed() bool {
	return t.closed.Load()
}
