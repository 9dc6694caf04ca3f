package models

import (
	"time"

	"gorm.io/gorm"
)

// DBOptionRecord is the storage slot of one option contract.
// Data holds the encoded account; the other columns exist for lookups.
type DBOptionRecord struct {
	gorm.Model
	RecordKey       string `gorm:"uniqueIndex"`
	Owner           string `gorm:"index"`
	UnderlyingAsset string `gorm:"index"`
	OptionType      uint8
	Status          uint8 `gorm:"index"`
	Expiration      uint64
	Data            []byte
}

// DBLedgerEvent is one journaled transaction, successful or not
type DBLedgerEvent struct {
	gorm.Model
	Signature   string `gorm:"uniqueIndex"`
	Instruction string `gorm:"index"`
	RecordKey   string `gorm:"index"`
	Caller      string `gorm:"index"`
	Success     bool
	ErrorCode   string
	ErrorNumber uint32
	Message     string
	ExecutedAt  time.Time `gorm:"index"`
}

// DBReleasedSlot records a destroyed slot and who received its resources
type DBReleasedSlot struct {
	gorm.Model
	RecordKey  string `gorm:"uniqueIndex"`
	Recipient  string `gorm:"index"`
	DataLength int
	ReleasedAt time.Time
}

func (DBOptionRecord) TableName() string {
	return "option_records"
}

func (DBLedgerEvent) TableName() string {
	return "ledger_events"
}

func (DBReleasedSlot) TableName() string {
	return "released_slots"
}
