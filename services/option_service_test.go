package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-ledger/database"
	"option-ledger/interfaces"
)

func newTestOptionService(t *testing.T) (*OptionService, *interfaces.ManualClock, *database.MemoryLedger, *ActivityLogger) {
	t.Helper()

	clock := interfaces.NewManualClock(testStart)
	ledger := database.NewMemoryLedger(clock)
	activity := NewActivityLogger(t.TempDir(), clock)
	svc := NewOptionService(ledger, activity, clock)
	svc.SetLogLevel(logrus.PanicLevel)
	return svc, clock, ledger, activity
}

func TestOptionServiceJournal(t *testing.T) {
	t.Run("scenario: initialize, exercise, exercise again", func(t *testing.T) {
		svc, clock, _, activity := newTestOptionService(t)
		ctx := context.Background()
		owner := mustRandomKey(t)

		created, err := svc.InitializeOption(ctx, owner, InitializeParams{
			StrikePrice:     100,
			OptionType:      interfaces.OptionTypeCall,
			Expiration:      testStart.Add(time.Hour).Unix(),
			UnderlyingAsset: mustRandomKey(t),
			Quantity:        10,
			PremiumPrice:    5,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, created.Signature)
		assert.Equal(t, interfaces.InstructionInitialize, created.Instruction)
		assert.Equal(t, interfaces.OptionStatusActive, created.Record.Status)

		clock.Add(30 * time.Minute)
		exercised, err := svc.ExerciseOption(ctx, owner, created.Record.Key)
		require.NoError(t, err)
		assert.Equal(t, interfaces.OptionStatusExercised, exercised.Record.Status)
		assert.NotEqual(t, created.Signature, exercised.Signature)

		_, err = svc.ExerciseOption(ctx, owner, created.Record.Key)
		assert.ErrorIs(t, err, ErrOptionNotActive)

		events, err := svc.ListEvents(ctx, created.Record.Key)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, interfaces.InstructionInitialize, events[0].Instruction)
		assert.True(t, events[0].Success)
		assert.True(t, events[1].Success)
		assert.False(t, events[2].Success)
		assert.Equal(t, "OptionNotActive", events[2].ErrorCode)
		assert.Equal(t, uint32(6001), events[2].ErrorNumber)
		assert.Equal(t, owner, events[2].Caller)

		log, err := activity.GetCurrentLog()
		require.NoError(t, err)
		assert.Equal(t, 3, log.Summary.TotalTransactions)
		assert.Equal(t, 1, log.Summary.OptionsInitialized)
		assert.Equal(t, 1, log.Summary.OptionsExercised)
		assert.Equal(t, 1, log.Summary.FailedTransactions)
		assert.Equal(t, 1, log.Summary.CallsWritten)
		assert.Equal(t, "5", log.Summary.PremiumWritten.String())
		assert.Equal(t, "1000", log.Summary.NotionalWritten.String())
	})

	t.Run("failed initialize is journaled without a record key", func(t *testing.T) {
		svc, _, ledger, _ := newTestOptionService(t)
		ctx := context.Background()

		_, err := svc.InitializeOption(ctx, mustRandomKey(t), InitializeParams{Expiration: testStart.Unix() - 1})
		assert.ErrorIs(t, err, ErrInvalidExpiration)

		events, err := ledger.ListEvents(ctx, interfaces.PublicKey{})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "InvalidExpiration", events[0].ErrorCode)
	})

	t.Run("reads map missing records to OptionNotFound", func(t *testing.T) {
		svc, _, _, _ := newTestOptionService(t)

		_, err := svc.GetOption(context.Background(), mustRandomKey(t))
		assert.ErrorIs(t, err, ErrOptionNotFound)
	})

	t.Run("list filters by owner and status", func(t *testing.T) {
		svc, _, _, _ := newTestOptionService(t)
		ctx := context.Background()
		alice, bob := mustRandomKey(t), mustRandomKey(t)

		params := InitializeParams{Expiration: testStart.Add(time.Hour).Unix()}
		a1, err := svc.InitializeOption(ctx, alice, params)
		require.NoError(t, err)
		_, err = svc.InitializeOption(ctx, alice, params)
		require.NoError(t, err)
		_, err = svc.InitializeOption(ctx, bob, params)
		require.NoError(t, err)
		_, err = svc.ExerciseOption(ctx, alice, a1.Record.Key)
		require.NoError(t, err)

		all, err := svc.ListOptions(ctx, interfaces.OptionFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		mine, err := svc.ListOptions(ctx, interfaces.OptionFilter{Owner: &alice})
		require.NoError(t, err)
		assert.Len(t, mine, 2)

		exercised := interfaces.OptionStatusExercised
		done, err := svc.ListOptions(ctx, interfaces.OptionFilter{Owner: &alice, Status: &exercised})
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, a1.Record.Key, done[0].Key)
	})
}

func newSQLiteOptionService(t *testing.T) *OptionService {
	t.Helper()

	clock := interfaces.NewManualClock(testStart)
	storage, err := database.NewLocalStorage(filepath.Join(t.TempDir(), "ledger.db"), clock)
	require.NoError(t, err)
	storage.SetLogLevel(logrus.PanicLevel)
	t.Cleanup(func() { storage.Close() })

	svc := NewOptionService(storage, NewActivityLogger(t.TempDir(), clock), clock)
	svc.SetLogLevel(logrus.PanicLevel)
	return svc
}

func TestOptionServiceOnSQLite(t *testing.T) {
	params := InitializeParams{
		StrikePrice:     100,
		OptionType:      interfaces.OptionTypeCall,
		Expiration:      testStart.Add(time.Hour).Unix(),
		UnderlyingAsset: interfaces.PublicKey{1},
		Quantity:        10,
		PremiumPrice:    5,
	}

	t.Run("concurrent exercises commit exactly once per option", func(t *testing.T) {
		svc := newSQLiteOptionService(t)
		ctx := context.Background()
		owner := mustRandomKey(t)

		const options, attempts = 20, 8
		keys := make([]interfaces.PublicKey, options)
		for i := range keys {
			created, err := svc.InitializeOption(ctx, owner, params)
			require.NoError(t, err)
			keys[i] = created.Record.Key
		}

		errs := make([][]error, options)
		var wg sync.WaitGroup
		for i, key := range keys {
			errs[i] = make([]error, attempts)
			for j := 0; j < attempts; j++ {
				wg.Add(1)
				go func(i, j int, key interfaces.PublicKey) {
					defer wg.Done()
					_, errs[i][j] = svc.ExerciseOption(ctx, owner, key)
				}(i, j, key)
			}
		}
		wg.Wait()

		for i, optionErrs := range errs {
			succeeded := 0
			for _, err := range optionErrs {
				if err == nil {
					succeeded++
					continue
				}
				assert.ErrorIs(t, err, ErrOptionNotActive)
			}
			assert.Equal(t, 1, succeeded, "option %d", i)
		}

		for _, key := range keys {
			events, err := svc.ListEvents(ctx, key)
			require.NoError(t, err)
			assert.Len(t, events, attempts+1)
		}
	})

	t.Run("independent owners all succeed concurrently", func(t *testing.T) {
		svc := newSQLiteOptionService(t)
		ctx := context.Background()

		const options = 60
		owners := make([]interfaces.PublicKey, options)
		keys := make([]interfaces.PublicKey, options)
		for i := range keys {
			owners[i] = mustRandomKey(t)
			created, err := svc.InitializeOption(ctx, owners[i], params)
			require.NoError(t, err)
			keys[i] = created.Record.Key
		}

		errs := make([]error, options)
		var wg sync.WaitGroup
		for i := range keys {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.ExerciseOption(ctx, owners[i], keys[i])
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			assert.NoError(t, err, "option %d", i)
		}

		exercised := interfaces.OptionStatusExercised
		done, err := svc.ListOptions(ctx, interfaces.OptionFilter{Status: &exercised})
		require.NoError(t, err)
		assert.Len(t, done, options)
	})
}

func TestLifecycleErrors(t *testing.T) {
	t.Run("numbers are unique and ascending from 6000", func(t *testing.T) {
		for i, e := range AllLifecycleErrors {
			assert.Equal(t, uint32(6000+i), e.Number, e.Code)
		}
	})

	t.Run("kinds", func(t *testing.T) {
		assert.Equal(t, KindValidation, ErrorKindOf(ErrInvalidExpiration))
		assert.Equal(t, KindState, ErrorKindOf(ErrOptionNotActive))
		assert.Equal(t, KindState, ErrorKindOf(ErrOptionAlreadyClosed))
		assert.Equal(t, KindAuthorization, ErrorKindOf(ErrUnauthorizedExercise))
		assert.Equal(t, KindNotFound, ErrorKindOf(ErrOptionNotFound))
		assert.Equal(t, ErrorKind(""), ErrorKindOf(fmt.Errorf("disk full")))
	})

	t.Run("wrapped errors keep identity", func(t *testing.T) {
		err := fmt.Errorf("tx 42: %w", ErrOptionExpired)
		assert.ErrorIs(t, err, ErrOptionExpired)

		le, ok := AsLifecycleError(err)
		require.True(t, ok)
		assert.Equal(t, "OptionExpired", le.Code)
		assert.Contains(t, err.Error(), "6002")
	})
}
