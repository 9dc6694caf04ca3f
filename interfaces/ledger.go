package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned by ledgers when no slot exists for a key
var ErrRecordNotFound = errors.New("record not found")

// ExecutionContext is the capability a single ledger transaction hands to program logic.
// Everything written through it commits atomically when the transaction function returns nil
// and is discarded otherwise.
type ExecutionContext interface {
	// CurrentTime returns the ledger clock as unix seconds
	CurrentTime() int64
	// Caller returns the verified identity that signed the transaction
	Caller() PublicKey
	// Allocate creates a new storage slot holding record and returns its key
	Allocate(record *OptionRecord) (PublicKey, error)
	// Load returns a copy of the record stored at key, or ErrRecordNotFound
	Load(key PublicKey) (*OptionRecord, error)
	// Store overwrites the slot at record.Key
	Store(record *OptionRecord) error
	// Destroy removes the slot at key and releases its resources to recipient
	Destroy(key PublicKey, recipient PublicKey) error
}

// Ledger runs transactions against keyed option records and serves reads outside them
type Ledger interface {
	Execute(ctx context.Context, caller PublicKey, fn func(ExecutionContext) error) error
	GetRecord(ctx context.Context, key PublicKey) (*OptionRecord, error)
	ListRecords(ctx context.Context, filter OptionFilter) ([]*OptionRecord, error)
	SaveEvent(ctx context.Context, event *LedgerEvent) error
	ListEvents(ctx context.Context, recordKey PublicKey) ([]*LedgerEvent, error)
}

// Instruction names a ledger operation
type Instruction string

const (
	InstructionInitialize Instruction = "initialize_option"
	InstructionExercise   Instruction = "exercise_option"
	InstructionExpire     Instruction = "expire_option"
	InstructionClose      Instruction = "close_option"
)

// LedgerEvent is the journal entry written for every submitted transaction
type LedgerEvent struct {
	Signature   string      `json:"signature"`
	Instruction Instruction `json:"instruction"`
	RecordKey   PublicKey   `json:"record_key"`
	Caller      PublicKey   `json:"caller"`
	Success     bool        `json:"success"`
	ErrorCode   string      `json:"error_code,omitempty"`
	ErrorNumber uint32      `json:"error_number,omitempty"`
	Message     string      `json:"message,omitempty"`
	ExecutedAt  time.Time   `json:"executed_at"`
}
