package services

import (
	"context"
	"errors"
	"fmt"

	"option-ledger/interfaces"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TransactionResult describes a committed ledger transaction
type TransactionResult struct {
	Signature   string                   `json:"signature"`
	Instruction interfaces.Instruction   `json:"instruction"`
	Record      *interfaces.OptionRecord `json:"record"`
}

// OptionService submits lifecycle operations to a ledger as signed transactions
// and journals every outcome
type OptionService struct {
	ledger    interfaces.Ledger
	lifecycle *OptionLifecycle
	activity  *ActivityLogger
	clock     interfaces.Clock
	logger    *logrus.Logger
}

// NewOptionService creates a new option service. activity may be nil.
func NewOptionService(ledger interfaces.Ledger, activity *ActivityLogger, clock interfaces.Clock) *OptionService {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if clock == nil {
		clock = interfaces.SystemClock{}
	}

	return &OptionService{
		ledger:    ledger,
		lifecycle: NewOptionLifecycle(logger),
		activity:  activity,
		clock:     clock,
		logger:    logger,
	}
}

// SetLogLevel adjusts the service logger verbosity
func (s *OptionService) SetLogLevel(level logrus.Level) {
	s.logger.SetLevel(level)
}

// InitializeOption writes a new option owned by caller
func (s *OptionService) InitializeOption(ctx context.Context, caller interfaces.PublicKey, params InitializeParams) (*TransactionResult, error) {
	s.logger.WithFields(logrus.Fields{
		"caller":       caller.String(),
		"strike_price": params.StrikePrice,
		"option_type":  params.OptionType.String(),
		"expiration":   params.Expiration,
	}).Info("Submitting initialize_option")

	return s.submit(ctx, interfaces.InstructionInitialize, caller, interfaces.PublicKey{},
		func(ec interfaces.ExecutionContext) (*interfaces.OptionRecord, error) {
			return s.lifecycle.Initialize(ec, params)
		})
}

// ExerciseOption exercises the option at key on behalf of caller
func (s *OptionService) ExerciseOption(ctx context.Context, caller, key interfaces.PublicKey) (*TransactionResult, error) {
	return s.submit(ctx, interfaces.InstructionExercise, caller, key,
		func(ec interfaces.ExecutionContext) (*interfaces.OptionRecord, error) {
			return s.lifecycle.Exercise(ec, key)
		})
}

// ExpireOption expires the option at key on behalf of caller
func (s *OptionService) ExpireOption(ctx context.Context, caller, key interfaces.PublicKey) (*TransactionResult, error) {
	return s.submit(ctx, interfaces.InstructionExpire, caller, key,
		func(ec interfaces.ExecutionContext) (*interfaces.OptionRecord, error) {
			return s.lifecycle.Expire(ec, key)
		})
}

// CloseOption closes and destroys the option at key on behalf of caller
func (s *OptionService) CloseOption(ctx context.Context, caller, key interfaces.PublicKey) (*TransactionResult, error) {
	return s.submit(ctx, interfaces.InstructionClose, caller, key,
		func(ec interfaces.ExecutionContext) (*interfaces.OptionRecord, error) {
			return s.lifecycle.Close(ec, key)
		})
}

// GetOption retrieves a committed option
func (s *OptionService) GetOption(ctx context.Context, key interfaces.PublicKey) (*interfaces.OptionRecord, error) {
	record, err := s.ledger.GetRecord(ctx, key)
	if err != nil {
		if errors.Is(err, interfaces.ErrRecordNotFound) {
			return nil, ErrOptionNotFound
		}
		return nil, fmt.Errorf("failed to get option: %w", err)
	}
	return record, nil
}

// ListOptions lists committed options matching filter
func (s *OptionService) ListOptions(ctx context.Context, filter interfaces.OptionFilter) ([]*interfaces.OptionRecord, error) {
	records, err := s.ledger.ListRecords(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list options: %w", err)
	}
	return records, nil
}

// ListEvents returns the transaction journal of one option, including failures
func (s *OptionService) ListEvents(ctx context.Context, key interfaces.PublicKey) ([]*interfaces.LedgerEvent, error) {
	events, err := s.ledger.ListEvents(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

func (s *OptionService) submit(
	ctx context.Context,
	instruction interfaces.Instruction,
	caller interfaces.PublicKey,
	key interfaces.PublicKey,
	op func(interfaces.ExecutionContext) (*interfaces.OptionRecord, error),
) (*TransactionResult, error) {
	signature := uuid.NewString()

	var record *interfaces.OptionRecord
	err := s.ledger.Execute(ctx, caller, func(ec interfaces.ExecutionContext) error {
		r, err := op(ec)
		if err != nil {
			return err
		}
		record = r
		return nil
	})
	if err != nil {
		record = nil
	}

	event := &interfaces.LedgerEvent{
		Signature:   signature,
		Instruction: instruction,
		RecordKey:   key,
		Caller:      caller,
		Success:     err == nil,
		ExecutedAt:  s.clock.Now().UTC(),
	}
	if record != nil {
		event.RecordKey = record.Key
	}
	if err != nil {
		if le, ok := AsLifecycleError(err); ok {
			event.ErrorCode = le.Code
			event.ErrorNumber = le.Number
		}
		event.Message = err.Error()
	}

	if saveErr := s.ledger.SaveEvent(ctx, event); saveErr != nil {
		s.logger.WithError(saveErr).Warn("Failed to journal ledger event")
	}
	if s.activity != nil {
		if logErr := s.activity.LogTransaction(event, record); logErr != nil {
			s.logger.WithError(logErr).Warn("Failed to write activity log")
		}
	}

	fields := logrus.Fields{
		"signature":   signature,
		"instruction": instruction,
		"caller":      caller.String(),
	}
	if !event.RecordKey.IsZero() {
		fields["key"] = event.RecordKey.String()
	}

	if err != nil {
		s.logger.WithFields(fields).WithError(err).Warn("Transaction failed")
		return nil, err
	}

	s.logger.WithFields(fields).Info("Transaction committed")
	return &TransactionResult{
		Signature:   signature,
		Instruction: instruction,
		Record:      record,
	}, nil
}
