package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"option-ledger/interfaces"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Activity types written to the daily log
const (
	ActivityInitialized = "OPTION_INITIALIZED"
	ActivityExercised   = "OPTION_EXERCISED"
	ActivityExpired     = "OPTION_EXPIRED"
	ActivityClosed      = "OPTION_CLOSED"
	ActivityFailed      = "TRANSACTION_FAILED"
)

var (
	ErrInvalidActivityDate = errors.New("invalid activity date")
	ErrActivityLogNotFound = errors.New("activity log not found")
)

const activityDateLayout = "2006-01-02"

// ActivityLogger keeps a per-day JSON journal of ledger activity on disk
type ActivityLogger struct {
	logger     *logrus.Logger
	logDir     string
	clock      interfaces.Clock
	mu         sync.Mutex
	currentLog *DailyActivityLog
}

// DailyActivityLog represents a day's worth of ledger activity
type DailyActivityLog struct {
	Date       string          `json:"date"`
	FirstEntry time.Time       `json:"first_entry"`
	LastEntry  time.Time       `json:"last_entry"`
	Summary    ActivitySummary `json:"summary"`
	Activities []Activity      `json:"activities"`
}

// ActivitySummary provides running totals for the day
type ActivitySummary struct {
	TotalTransactions  int             `json:"total_transactions"`
	OptionsInitialized int             `json:"options_initialized"`
	OptionsExercised   int             `json:"options_exercised"`
	OptionsExpired     int             `json:"options_expired"`
	OptionsClosed      int             `json:"options_closed"`
	FailedTransactions int             `json:"failed_transactions"`
	CallsWritten       int             `json:"calls_written"`
	PutsWritten        int             `json:"puts_written"`
	PremiumWritten     decimal.Decimal `json:"premium_written"`
	NotionalWritten    decimal.Decimal `json:"notional_written"`
}

// Activity represents a single ledger transaction outcome
type Activity struct {
	Timestamp   time.Time              `json:"timestamp"`
	Type        string                 `json:"type"`
	Signature   string                 `json:"signature"`
	Instruction string                 `json:"instruction"`
	RecordKey   string                 `json:"record_key,omitempty"`
	Caller      string                 `json:"caller"`
	ErrorCode   string                 `json:"error_code,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// NewActivityLogger creates a new activity logger
func NewActivityLogger(logDir string, clock interfaces.Clock) *ActivityLogger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Ensure log directory exists
	if err := os.MkdirAll(logDir, 0755); err != nil {
		logger.WithError(err).Error("Failed to create activity log directory")
	}

	if clock == nil {
		clock = interfaces.SystemClock{}
	}

	return &ActivityLogger{
		logger: logger,
		logDir: logDir,
		clock:  clock,
	}
}

// SetLogLevel adjusts the activity logger verbosity
func (al *ActivityLogger) SetLogLevel(level logrus.Level) {
	al.logger.SetLevel(level)
}

// LogTransaction records the outcome of one ledger transaction.
// record is the post-state for successful transactions and may be nil for failures.
func (al *ActivityLogger) LogTransaction(event *interfaces.LedgerEvent, record *interfaces.OptionRecord) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	now := al.clock.Now()
	if err := al.rollover(now); err != nil {
		return err
	}

	activity := Activity{
		Timestamp:   now,
		Type:        activityType(event),
		Signature:   event.Signature,
		Instruction: string(event.Instruction),
		Caller:      event.Caller.String(),
		ErrorCode:   event.ErrorCode,
	}
	if !event.RecordKey.IsZero() {
		activity.RecordKey = event.RecordKey.String()
	}

	summary := &al.currentLog.Summary
	summary.TotalTransactions++

	switch activity.Type {
	case ActivityInitialized:
		summary.OptionsInitialized++
		if record != nil {
			if record.OptionType == interfaces.OptionTypeCall {
				summary.CallsWritten++
			} else {
				summary.PutsWritten++
			}
			premium := decimalFromUint64(record.PremiumPrice)
			notional := decimalFromUint64(record.StrikePrice).Mul(decimalFromUint64(record.Quantity))
			summary.PremiumWritten = summary.PremiumWritten.Add(premium)
			summary.NotionalWritten = summary.NotionalWritten.Add(notional)
			activity.Details = map[string]interface{}{
				"option_type":  record.OptionType.String(),
				"strike_price": record.StrikePrice,
				"quantity":     record.Quantity,
				"premium":      record.PremiumPrice,
				"expiration":   record.ExpirationTimestamp,
			}
		}
	case ActivityExercised:
		summary.OptionsExercised++
	case ActivityExpired:
		summary.OptionsExpired++
	case ActivityClosed:
		summary.OptionsClosed++
	case ActivityFailed:
		summary.FailedTransactions++
	}

	al.currentLog.Activities = append(al.currentLog.Activities, activity)
	al.currentLog.LastEntry = now

	al.logger.WithFields(logrus.Fields{
		"type":      activity.Type,
		"signature": activity.Signature,
		"record":    activity.RecordKey,
	}).Info("Activity logged")

	return al.saveLog()
}

// GetCurrentLog returns today's log
func (al *ActivityLogger) GetCurrentLog() (*DailyActivityLog, error) {
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.currentLog == nil || al.currentLog.Date != al.clock.Now().Format(activityDateLayout) {
		return nil, fmt.Errorf("%w: no activity recorded today", ErrActivityLogNotFound)
	}
	snapshot := *al.currentLog
	snapshot.Activities = append([]Activity(nil), al.currentLog.Activities...)
	return &snapshot, nil
}

// GetLogForDate retrieves the log for a specific date
func (al *ActivityLogger) GetLogForDate(date string) (*DailyActivityLog, error) {
	if _, err := time.Parse(activityDateLayout, date); err != nil {
		return nil, fmt.Errorf("%w %q: expected YYYY-MM-DD", ErrInvalidActivityDate, date)
	}

	filename := filepath.Join(al.logDir, fmt.Sprintf("activity_%s.json", date))

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w for date %s", ErrActivityLogNotFound, date)
		}
		return nil, fmt.Errorf("failed to read log for date %s: %w", date, err)
	}

	var log DailyActivityLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("failed to parse log: %w", err)
	}

	return &log, nil
}

// ListAvailableLogs returns all available log dates in ascending order
func (al *ActivityLogger) ListAvailableLogs() ([]string, error) {
	files, err := os.ReadDir(al.logDir)
	if err != nil {
		return nil, err
	}

	dates := make([]string, 0)
	for _, file := range files {
		if !file.IsDir() && filepath.Ext(file.Name()) == ".json" {
			// activity_2025-11-17.json
			name := file.Name()
			if len(name) > 19 && name[:9] == "activity_" {
				dates = append(dates, name[9:len(name)-5])
			}
		}
	}
	sort.Strings(dates)

	return dates, nil
}

// SummarizeRange adds up the daily summaries of every log dated within [from, to]
func (al *ActivityLogger) SummarizeRange(from, to string) (*ActivitySummary, []string, error) {
	start, err := time.Parse(activityDateLayout, from)
	if err != nil {
		return nil, nil, fmt.Errorf("%w %q: expected YYYY-MM-DD", ErrInvalidActivityDate, from)
	}
	end, err := time.Parse(activityDateLayout, to)
	if err != nil {
		return nil, nil, fmt.Errorf("%w %q: expected YYYY-MM-DD", ErrInvalidActivityDate, to)
	}
	if end.Before(start) {
		return nil, nil, fmt.Errorf("%w: range ends before it starts", ErrInvalidActivityDate)
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	dates, err := al.ListAvailableLogs()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list activity logs: %w", err)
	}

	total := &ActivitySummary{
		PremiumWritten:  decimal.Zero,
		NotionalWritten: decimal.Zero,
	}
	included := make([]string, 0)
	for _, date := range dates {
		// YYYY-MM-DD sorts lexically
		if date < from || date > to {
			continue
		}
		log, err := al.GetLogForDate(date)
		if err != nil {
			return nil, nil, err
		}
		total.add(log.Summary)
		included = append(included, date)
	}

	return total, included, nil
}

func (s *ActivitySummary) add(o ActivitySummary) {
	s.TotalTransactions += o.TotalTransactions
	s.OptionsInitialized += o.OptionsInitialized
	s.OptionsExercised += o.OptionsExercised
	s.OptionsExpired += o.OptionsExpired
	s.OptionsClosed += o.OptionsClosed
	s.FailedTransactions += o.FailedTransactions
	s.CallsWritten += o.CallsWritten
	s.PutsWritten += o.PutsWritten
	s.PremiumWritten = s.PremiumWritten.Add(o.PremiumWritten)
	s.NotionalWritten = s.NotionalWritten.Add(o.NotionalWritten)
}

// rollover starts a new day's log, resuming from disk if the file already exists.
// A file that exists but cannot be read is left untouched.
func (al *ActivityLogger) rollover(now time.Time) error {
	date := now.Format(activityDateLayout)
	if al.currentLog != nil && al.currentLog.Date == date {
		return nil
	}

	existing, err := al.GetLogForDate(date)
	if err == nil {
		al.currentLog = existing
		return nil
	}
	if !errors.Is(err, ErrActivityLogNotFound) {
		al.logger.WithError(err).WithField("date", date).Error("Failed to load existing activity log")
		return fmt.Errorf("failed to resume activity log for %s: %w", date, err)
	}

	al.currentLog = &DailyActivityLog{
		Date:       date,
		FirstEntry: now,
		Summary: ActivitySummary{
			PremiumWritten:  decimal.Zero,
			NotionalWritten: decimal.Zero,
		},
		Activities: make([]Activity, 0),
	}
	return nil
}

// saveLog saves the current log to disk
func (al *ActivityLogger) saveLog() error {
	if al.currentLog == nil {
		return fmt.Errorf("no active log to save")
	}

	filename := filepath.Join(al.logDir, fmt.Sprintf("activity_%s.json", al.currentLog.Date))

	data, err := json.MarshalIndent(al.currentLog, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write log file: %w", err)
	}

	return nil
}

func activityType(event *interfaces.LedgerEvent) string {
	if !event.Success {
		return ActivityFailed
	}
	switch event.Instruction {
	case interfaces.InstructionInitialize:
		return ActivityInitialized
	case interfaces.InstructionExercise:
		return ActivityExercised
	case interfaces.InstructionExpire:
		return ActivityExpired
	case interfaces.InstructionClose:
		return ActivityClosed
	}
	return ActivityFailed
}

func decimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
