package services

import (
	"errors"
	"fmt"

	"option-ledger/interfaces"

	"github.com/sirupsen/logrus"
)

// InitializeParams carries the terms of a new option contract
type InitializeParams struct {
	StrikePrice     uint64
	OptionType      interfaces.OptionType
	Expiration      int64
	UnderlyingAsset interfaces.PublicKey
	Quantity        uint64
	PremiumPrice    uint64
}

// OptionLifecycle is the option state machine.
// Every method runs inside one ledger transaction and either mutates the
// record completely or returns the first violated precondition untouched.
type OptionLifecycle struct {
	logger *logrus.Logger
}

// NewOptionLifecycle creates the state machine; a nil logger gets a default one
func NewOptionLifecycle(logger *logrus.Logger) *OptionLifecycle {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return &OptionLifecycle{logger: logger}
}

// Initialize writes a new Active option owned by the caller
func (l *OptionLifecycle) Initialize(ec interfaces.ExecutionContext, params InitializeParams) (*interfaces.OptionRecord, error) {
	now := ec.CurrentTime()

	if params.Expiration <= now {
		return nil, ErrInvalidExpiration
	}
	if !params.OptionType.Valid() {
		return nil, fmt.Errorf("invalid option type %d", uint8(params.OptionType))
	}

	record := &interfaces.OptionRecord{
		Owner:               ec.Caller(),
		UnderlyingAsset:     params.UnderlyingAsset,
		OptionType:          params.OptionType,
		StrikePrice:         params.StrikePrice,
		PremiumPrice:        params.PremiumPrice,
		Quantity:            params.Quantity,
		CreationTimestamp:   uint64(now),
		ExpirationTimestamp: uint64(params.Expiration),
		Status:              interfaces.OptionStatusActive,
	}

	if _, err := ec.Allocate(record); err != nil {
		return nil, fmt.Errorf("failed to allocate option account: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"key":          record.Key.String(),
		"owner":        record.Owner.String(),
		"strike_price": record.StrikePrice,
		"option_type":  record.OptionType.String(),
		"expiration":   record.ExpirationTimestamp,
	}).Info("Option contract initialized")

	return record, nil
}

// Exercise moves an Active, unexpired option to Exercised.
// Ownership is checked before status and time.
func (l *OptionLifecycle) Exercise(ec interfaces.ExecutionContext, key interfaces.PublicKey) (*interfaces.OptionRecord, error) {
	record, err := l.load(ec, key)
	if err != nil {
		return nil, err
	}

	if ec.Caller() != record.Owner {
		return nil, ErrUnauthorizedExercise
	}
	if record.Status != interfaces.OptionStatusActive {
		return nil, ErrOptionNotActive
	}

	now := ec.CurrentTime()
	if record.IsExpiredAt(now) {
		return nil, ErrOptionExpired
	}
	if record.Status == interfaces.OptionStatusExercised {
		return nil, ErrOptionAlreadyExercised
	}

	record.Status = interfaces.OptionStatusExercised
	if err := ec.Store(record); err != nil {
		return nil, fmt.Errorf("failed to store exercised option: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"key":          key.String(),
		"exercised_by": ec.Caller().String(),
		"strike_price": record.StrikePrice,
	}).Info("Option exercised")

	return record, nil
}

// Expire moves an Active option whose expiration has passed to Expired
func (l *OptionLifecycle) Expire(ec interfaces.ExecutionContext, key interfaces.PublicKey) (*interfaces.OptionRecord, error) {
	record, err := l.load(ec, key)
	if err != nil {
		return nil, err
	}

	now := ec.CurrentTime()
	l.logger.WithFields(logrus.Fields{
		"key":          key.String(),
		"current_time": now,
		"expiration":   record.ExpirationTimestamp,
		"status":       record.Status.String(),
	}).Debug("Expire requested")

	if ec.Caller() != record.Owner {
		return nil, ErrUnauthorizedCaller
	}
	if record.Status != interfaces.OptionStatusActive {
		return nil, ErrOptionNotActive
	}
	if !record.IsExpiredAt(now) {
		return nil, ErrOptionNotExpired
	}
	if record.Status == interfaces.OptionStatusExercised {
		return nil, ErrOptionAlreadyExercised
	}

	record.Status = interfaces.OptionStatusExpired
	if err := ec.Store(record); err != nil {
		return nil, fmt.Errorf("failed to store expired option: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"key":          key.String(),
		"expired_by":   ec.Caller().String(),
		"expiration":   record.ExpirationTimestamp,
		"current_time": now,
	}).Info("Option expired")

	return record, nil
}

// Close marks an open option Expired and destroys its slot, returning
// the slot's resources to the owner. The returned record is the final
// state before destruction.
func (l *OptionLifecycle) Close(ec interfaces.ExecutionContext, key interfaces.PublicKey) (*interfaces.OptionRecord, error) {
	record, err := l.load(ec, key)
	if err != nil {
		return nil, err
	}

	if ec.Caller() != record.Owner {
		return nil, ErrUnauthorizedCaller
	}
	if record.IsTerminal() {
		return nil, ErrOptionAlreadyClosed
	}

	record.Status = interfaces.OptionStatusExpired
	if err := ec.Store(record); err != nil {
		return nil, fmt.Errorf("failed to store closed option: %w", err)
	}
	if err := ec.Destroy(key, record.Owner); err != nil {
		return nil, fmt.Errorf("failed to release option account: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"key":       key.String(),
		"closed_by": ec.Caller().String(),
	}).Info("Option contract closed")

	return record, nil
}

func (l *OptionLifecycle) load(ec interfaces.ExecutionContext, key interfaces.PublicKey) (*interfaces.OptionRecord, error) {
	record, err := ec.Load(key)
	if err != nil {
		if errors.Is(err, interfaces.ErrRecordNotFound) {
			return nil, ErrOptionNotFound
		}
		return nil, fmt.Errorf("failed to load option account: %w", err)
	}
	return record, nil
}
