package fees

import "github.com/jmcleod/docproof/document"

// Credit costs charged per unit of work. Values follow the platform fee
// schedule; all arithmetic is integer so every node computes identical fees.
const (
	StorageDiskUsageCreditPerByte  uint64 = 27000
	StorageProcessingCreditPerByte uint64 = 400
	StorageLoadCreditPerByte       uint64 = 20
	NonStorageLoadCreditPerByte    uint64 = 10
	StorageSeekCost                uint64 = 2000
	HashBlockCost                  uint64 = 300
	HashBlockSize                  uint64 = 64
)

// Meter accumulates the work a single store call performs and converts it
// into a Signal. The zero value is ready to use.
type Meter struct {
	seeks        uint64
	loaded       uint64
	proofBytes   uint64
	written      uint64
	hashBlocks   uint64
	storageAdded uint64
	refunds      Refunds
}

// Seek records n random-access reads.
func (m *Meter) Seek(n int) {
	m.seeks += uint64(n)
}

// Load records bytes read from storage.
func (m *Meter) Load(n int) {
	m.loaded += uint64(n)
}

// Emit records bytes returned to the caller that were not loaded from
// storage, such as proof material.
func (m *Meter) Emit(n int) {
	m.proofBytes += uint64(n)
}

// Write records bytes written to storage.
func (m *Meter) Write(n int) {
	m.written += uint64(n)
}

// Hash records hashing over n input bytes.
func (m *Meter) Hash(n int) {
	blocks := (uint64(n) + HashBlockSize - 1) / HashBlockSize
	if blocks == 0 {
		blocks = 1
	}
	m.hashBlocks += blocks
}

// AddStorage charges for n newly stored bytes.
func (m *Meter) AddStorage(n int) {
	if n > 0 {
		m.storageAdded += uint64(n)
	}
}

// RemoveStorage refunds n previously stored bytes to the identity that paid
// for them.
func (m *Meter) RemoveStorage(payer document.ID, n int) {
	if n <= 0 {
		return
	}
	if m.refunds == nil {
		m.refunds = make(Refunds)
	}
	m.refunds[payer] += uint64(n) * StorageDiskUsageCreditPerByte
}

// Signal returns the accumulated costs.
func (m *Meter) Signal() Signal {
	sig := Signal{
		StorageFee: m.storageAdded * StorageDiskUsageCreditPerByte,
		ProcessingFee: m.seeks*StorageSeekCost +
			m.loaded*StorageLoadCreditPerByte +
			m.proofBytes*NonStorageLoadCreditPerByte +
			m.written*StorageProcessingCreditPerByte +
			m.hashBlocks*HashBlockCost,
	}
	if len(m.refunds) > 0 {
		sig.Refunds = make(Refunds, len(m.refunds))
		for id, v := range m.refunds {
			sig.Refunds[id] = v
		}
	}
	return sig
}
