package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"option-ledger/interfaces"
	"option-ledger/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// LocalStorage implements interfaces.Ledger on SQLite.
// Transactions are serialized; each runs inside one database transaction.
type LocalStorage struct {
	db     *gorm.DB
	clock  interfaces.Clock
	mu     sync.Mutex
	logger *logrus.Logger
}

// sqliteOptions makes other processes (the prune command) wait for the write lock
// and starts every transaction as a writer
const sqliteOptions = "?_busy_timeout=5000&_txlock=immediate"

// NewLocalStorage opens (or creates) the ledger database at dbPath
func NewLocalStorage(dbPath string, clock interfaces.Clock) (*LocalStorage, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath+sqliteOptions), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: transactions, journal writes and reads queue on the pool
	// instead of racing for the SQLite write lock.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.DBOptionRecord{},
		&models.DBLedgerEvent{},
		&models.DBReleasedSlot{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if clock == nil {
		clock = interfaces.SystemClock{}
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &LocalStorage{
		db:     db,
		clock:  clock,
		logger: logger,
	}, nil
}

// SetLogLevel adjusts the storage logger verbosity
func (s *LocalStorage) SetLogLevel(level logrus.Level) {
	s.logger.SetLevel(level)
}

// Execute runs fn as one atomic ledger transaction signed by caller
func (s *LocalStorage) Execute(ctx context.Context, caller interfaces.PublicKey, fn func(interfaces.ExecutionContext) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&storageTx{
			tx:     tx,
			caller: caller,
			now:    s.clock.Now().Unix(),
			logger: s.logger,
		})
	})
}

// GetRecord retrieves the committed record at key
func (s *LocalStorage) GetRecord(ctx context.Context, key interfaces.PublicKey) (*interfaces.OptionRecord, error) {
	var row models.DBOptionRecord

	result := s.db.WithContext(ctx).Where("record_key = ?", key.String()).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, interfaces.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get option record: %w", result.Error)
	}

	return toOptionRecord(&row)
}

// ListRecords retrieves committed records matching filter, newest first
func (s *LocalStorage) ListRecords(ctx context.Context, filter interfaces.OptionFilter) ([]*interfaces.OptionRecord, error) {
	var rows []*models.DBOptionRecord

	query := s.db.WithContext(ctx).Model(&models.DBOptionRecord{})
	if filter.Owner != nil {
		query = query.Where("owner = ?", filter.Owner.String())
	}
	if filter.Status != nil {
		query = query.Where("status = ?", uint8(*filter.Status))
	}

	result := query.Order("created_at DESC").Order("id DESC").Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list option records: %w", result.Error)
	}

	records := make([]*interfaces.OptionRecord, 0, len(rows))
	for _, row := range rows {
		record, err := toOptionRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

// SaveEvent journals a submitted transaction
func (s *LocalStorage) SaveEvent(ctx context.Context, event *interfaces.LedgerEvent) error {
	row := &models.DBLedgerEvent{
		Signature:   event.Signature,
		Instruction: string(event.Instruction),
		RecordKey:   keyString(event.RecordKey),
		Caller:      event.Caller.String(),
		Success:     event.Success,
		ErrorCode:   event.ErrorCode,
		ErrorNumber: event.ErrorNumber,
		Message:     event.Message,
		ExecutedAt:  event.ExecutedAt,
	}

	result := s.db.WithContext(ctx).Create(row)
	if result.Error != nil {
		return fmt.Errorf("failed to save ledger event: %w", result.Error)
	}

	return nil
}

// ListEvents retrieves the journal for one record in execution order
func (s *LocalStorage) ListEvents(ctx context.Context, recordKey interfaces.PublicKey) ([]*interfaces.LedgerEvent, error) {
	var rows []*models.DBLedgerEvent

	result := s.db.WithContext(ctx).
		Where("record_key = ?", keyString(recordKey)).
		Order("executed_at ASC").Order("id ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list ledger events: %w", result.Error)
	}

	events := make([]*interfaces.LedgerEvent, 0, len(rows))
	for _, row := range rows {
		event := &interfaces.LedgerEvent{
			Signature:   row.Signature,
			Instruction: interfaces.Instruction(row.Instruction),
			Success:     row.Success,
			ErrorCode:   row.ErrorCode,
			ErrorNumber: row.ErrorNumber,
			Message:     row.Message,
			ExecutedAt:  row.ExecutedAt,
		}
		if row.RecordKey != "" {
			key, err := interfaces.ParsePublicKey(row.RecordKey)
			if err != nil {
				return nil, fmt.Errorf("corrupt ledger event %s: %w", row.Signature, err)
			}
			event.RecordKey = key
		}
		caller, err := interfaces.ParsePublicKey(row.Caller)
		if err != nil {
			return nil, fmt.Errorf("corrupt ledger event %s: %w", row.Signature, err)
		}
		event.Caller = caller
		events = append(events, event)
	}

	return events, nil
}

// CleanupOldData removes journal entries executed before the given time.
// Option records are never removed here; only Close destroys a slot.
func (s *LocalStorage) CleanupOldData(before time.Time) (int64, error) {
	s.logger.WithField("before", before).Info("Cleaning up old ledger events")

	result := s.db.Unscoped().Where("executed_at < ?", before).Delete(&models.DBLedgerEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old ledger events: %w", result.Error)
	}

	s.logger.WithField("deleted", result.RowsAffected).Info("Old ledger events cleaned up")
	return result.RowsAffected, nil
}

// Close closes the database connection
func (s *LocalStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// storageTx is the ExecutionContext for one SQLite transaction
type storageTx struct {
	tx     *gorm.DB
	caller interfaces.PublicKey
	now    int64
	logger *logrus.Logger
}

func (t *storageTx) CurrentTime() int64 {
	return t.now
}

func (t *storageTx) Caller() interfaces.PublicKey {
	return t.caller
}

func (t *storageTx) Allocate(record *interfaces.OptionRecord) (interfaces.PublicKey, error) {
	key, err := interfaces.NewRandomPublicKey()
	if err != nil {
		return interfaces.PublicKey{}, err
	}
	record.Key = key

	row := toDBOptionRecord(record)
	if err := t.tx.Create(row).Error; err != nil {
		return interfaces.PublicKey{}, fmt.Errorf("failed to allocate option record: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"key":   key.String(),
		"bytes": len(row.Data),
	}).Debug("Allocated option slot")

	return key, nil
}

func (t *storageTx) Load(key interfaces.PublicKey) (*interfaces.OptionRecord, error) {
	var row models.DBOptionRecord

	result := t.tx.Where("record_key = ?", key.String()).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, interfaces.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to load option record: %w", result.Error)
	}

	return toOptionRecord(&row)
}

func (t *storageTx) Store(record *interfaces.OptionRecord) error {
	row := toDBOptionRecord(record)

	result := t.tx.Model(&models.DBOptionRecord{}).
		Where("record_key = ?", row.RecordKey).
		Updates(map[string]interface{}{
			"owner":            row.Owner,
			"underlying_asset": row.UnderlyingAsset,
			"option_type":      row.OptionType,
			"status":           row.Status,
			"expiration":       row.Expiration,
			"data":             row.Data,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to store option record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return interfaces.ErrRecordNotFound
	}

	return nil
}

func (t *storageTx) Destroy(key interfaces.PublicKey, recipient interfaces.PublicKey) error {
	var row models.DBOptionRecord

	result := t.tx.Where("record_key = ?", key.String()).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return interfaces.ErrRecordNotFound
		}
		return fmt.Errorf("failed to load option record: %w", result.Error)
	}

	if err := t.tx.Unscoped().Delete(&row).Error; err != nil {
		return fmt.Errorf("failed to destroy option record: %w", err)
	}

	released := &models.DBReleasedSlot{
		RecordKey:  row.RecordKey,
		Recipient:  recipient.String(),
		DataLength: len(row.Data),
		ReleasedAt: time.Unix(t.now, 0).UTC(),
	}
	if err := t.tx.Create(released).Error; err != nil {
		return fmt.Errorf("failed to record released slot: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"key":       row.RecordKey,
		"recipient": released.Recipient,
	}).Debug("Released option slot")

	return nil
}

func toDBOptionRecord(record *interfaces.OptionRecord) *models.DBOptionRecord {
	return &models.DBOptionRecord{
		RecordKey:       record.Key.String(),
		Owner:           record.Owner.String(),
		UnderlyingAsset: record.UnderlyingAsset.String(),
		OptionType:      uint8(record.OptionType),
		Status:          uint8(record.Status),
		Expiration:      record.ExpirationTimestamp,
		Data:            models.EncodeOptionAccount(record),
	}
}

func toOptionRecord(row *models.DBOptionRecord) (*interfaces.OptionRecord, error) {
	record, err := models.DecodeOptionAccount(row.Data)
	if err != nil {
		return nil, fmt.Errorf("corrupt option record %s: %w", row.RecordKey, err)
	}

	key, err := interfaces.ParsePublicKey(row.RecordKey)
	if err != nil {
		return nil, fmt.Errorf("corrupt option record key: %w", err)
	}
	record.Key = key

	return record, nil
}

func keyString(key interfaces.PublicKey) string {
	if key.IsZero() {
		return ""
	}
	return key.String()
}
