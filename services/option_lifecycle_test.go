package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-ledger/database"
	"option-ledger/interfaces"
)

var testStart = time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)

type lifecycleHarness struct {
	t         *testing.T
	clock     *interfaces.ManualClock
	ledger    *database.MemoryLedger
	lifecycle *OptionLifecycle
	owner     interfaces.PublicKey
	stranger  interfaces.PublicKey
	asset     interfaces.PublicKey
}

func newLifecycleHarness(t *testing.T) *lifecycleHarness {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	clock := interfaces.NewManualClock(testStart)
	return &lifecycleHarness{
		t:         t,
		clock:     clock,
		ledger:    database.NewMemoryLedger(clock),
		lifecycle: NewOptionLifecycle(logger),
		owner:     mustRandomKey(t),
		stranger:  mustRandomKey(t),
		asset:     mustRandomKey(t),
	}
}

func mustRandomKey(t *testing.T) interfaces.PublicKey {
	t.Helper()
	key, err := interfaces.NewRandomPublicKey()
	require.NoError(t, err)
	return key
}

func (h *lifecycleHarness) run(caller interfaces.PublicKey, op func(interfaces.ExecutionContext) (*interfaces.OptionRecord, error)) (*interfaces.OptionRecord, error) {
	var out *interfaces.OptionRecord
	err := h.ledger.Execute(context.Background(), caller, func(ec interfaces.ExecutionContext) error {
		r, err := op(ec)
		out = r
		return err
	})
	return out, err
}

func (h *lifecycleHarness) initialize(caller interfaces.PublicKey, params InitializeParams) (*interfaces.OptionRecord, error) {
	return h.run(caller, func(ec interfaces.ExecutionContext) (*interfaces.OptionRecord, error) {
		return h.lifecycle.Initialize(ec, params)
	})
}

func (h *lifecycleHarness) exercise(caller, key interfaces.PublicKey) (*interfaces.OptionRecord, error) {
	return h.run(caller, func(ec interfaces.ExecutionContext) (*interfaces.OptionRecord, error) {
		return h.lifecycle.Exercise(ec, key)
	})
}

func (h *lifecycleHarness) expire(caller, key interfaces.PublicKey) (*interfaces.OptionRecord, error) {
	return h.run(caller, func(ec interfaces.ExecutionContext) (*interfaces.OptionRecord, error) {
		return h.lifecycle.Expire(ec, key)
	})
}

func (h *lifecycleHarness) close(caller, key interfaces.PublicKey) (*interfaces.OptionRecord, error) {
	return h.run(caller, func(ec interfaces.ExecutionContext) (*interfaces.OptionRecord, error) {
		return h.lifecycle.Close(ec, key)
	})
}

// newOption creates an Active call expiring ttl after the current clock time
func (h *lifecycleHarness) newOption(ttl time.Duration) *interfaces.OptionRecord {
	h.t.Helper()
	record, err := h.initialize(h.owner, InitializeParams{
		StrikePrice:     100,
		OptionType:      interfaces.OptionTypeCall,
		Expiration:      h.clock.Now().Add(ttl).Unix(),
		UnderlyingAsset: h.asset,
		Quantity:        10,
		PremiumPrice:    5,
	})
	require.NoError(h.t, err)
	return record
}

func (h *lifecycleHarness) stored(key interfaces.PublicKey) *interfaces.OptionRecord {
	h.t.Helper()
	record, err := h.ledger.GetRecord(context.Background(), key)
	require.NoError(h.t, err)
	return record
}

func TestInitializeOption(t *testing.T) {
	t.Run("populates every field and starts active", func(t *testing.T) {
		h := newLifecycleHarness(t)
		expiration := testStart.Add(time.Hour).Unix()

		record, err := h.initialize(h.owner, InitializeParams{
			StrikePrice:     100,
			OptionType:      interfaces.OptionTypePut,
			Expiration:      expiration,
			UnderlyingAsset: h.asset,
			Quantity:        10,
			PremiumPrice:    5,
		})
		require.NoError(t, err)

		stored := h.stored(record.Key)
		assert.Equal(t, record, stored)
		assert.False(t, stored.Key.IsZero())
		assert.Equal(t, h.owner, stored.Owner)
		assert.Equal(t, h.asset, stored.UnderlyingAsset)
		assert.Equal(t, interfaces.OptionTypePut, stored.OptionType)
		assert.Equal(t, uint64(100), stored.StrikePrice)
		assert.Equal(t, uint64(10), stored.Quantity)
		assert.Equal(t, uint64(5), stored.PremiumPrice)
		assert.Equal(t, uint64(testStart.Unix()), stored.CreationTimestamp)
		assert.Equal(t, uint64(expiration), stored.ExpirationTimestamp)
		assert.Equal(t, interfaces.OptionStatusActive, stored.Status)
	})

	t.Run("rejects expiration in the past and allocates nothing", func(t *testing.T) {
		h := newLifecycleHarness(t)

		record, err := h.initialize(h.owner, InitializeParams{
			StrikePrice: 100,
			OptionType:  interfaces.OptionTypeCall,
			Expiration:  testStart.Unix() - 1,
		})
		assert.ErrorIs(t, err, ErrInvalidExpiration)
		assert.Nil(t, record)

		records, err := h.ledger.ListRecords(context.Background(), interfaces.OptionFilter{})
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("rejects expiration equal to now", func(t *testing.T) {
		h := newLifecycleHarness(t)

		_, err := h.initialize(h.owner, InitializeParams{Expiration: testStart.Unix()})
		assert.ErrorIs(t, err, ErrInvalidExpiration)
	})

	t.Run("accepts zero amounts verbatim", func(t *testing.T) {
		h := newLifecycleHarness(t)

		record, err := h.initialize(h.owner, InitializeParams{Expiration: testStart.Unix() + 1})
		require.NoError(t, err)
		assert.Zero(t, h.stored(record.Key).StrikePrice)
	})
}

func TestExerciseOption(t *testing.T) {
	t.Run("owner exercises once before expiration", func(t *testing.T) {
		h := newLifecycleHarness(t)
		option := h.newOption(time.Hour)

		h.clock.Add(30 * time.Minute)
		record, err := h.exercise(h.owner, option.Key)
		require.NoError(t, err)
		assert.Equal(t, interfaces.OptionStatusExercised, record.Status)
		assert.Equal(t, interfaces.OptionStatusExercised, h.stored(option.Key).Status)

		_, err = h.exercise(h.owner, option.Key)
		assert.ErrorIs(t, err, ErrOptionNotActive)
	})

	t.Run("exercise at the exact expiration second succeeds", func(t *testing.T) {
		h := newLifecycleHarness(t)
		option := h.newOption(time.Hour)

		h.clock.Add(time.Hour)
		_, err := h.exercise(h.owner, option.Key)
		require.NoError(t, err)
	})

	t.Run("expired option fails without changing status", func(t *testing.T) {
		h := newLifecycleHarness(t)
		option := h.newOption(time.Hour)

		h.clock.Add(time.Hour + time.Second)
		_, err := h.exercise(h.owner, option.Key)
		assert.ErrorIs(t, err, ErrOptionExpired)
		assert.Equal(t, interfaces.OptionStatusActive, h.stored(option.Key).Status)
	})

	t.Run("non-owner always fails unauthorized and never mutates", func(t *testing.T) {
		h := newLifecycleHarness(t)
		active := h.newOption(time.Hour)
		exercised := h.newOption(time.Hour)
		_, err := h.exercise(h.owner, exercised.Key)
		require.NoError(t, err)

		_, err = h.exercise(h.stranger, active.Key)
		assert.ErrorIs(t, err, ErrUnauthorizedExercise)

		_, err = h.exercise(h.stranger, exercised.Key)
		assert.ErrorIs(t, err, ErrUnauthorizedExercise)

		h.clock.Add(2 * time.Hour)
		_, err = h.exercise(h.stranger, active.Key)
		assert.ErrorIs(t, err, ErrUnauthorizedExercise)

		assert.Equal(t, interfaces.OptionStatusActive, h.stored(active.Key).Status)
		assert.Equal(t, interfaces.OptionStatusExercised, h.stored(exercised.Key).Status)
	})

	t.Run("unknown key", func(t *testing.T) {
		h := newLifecycleHarness(t)

		_, err := h.exercise(h.owner, mustRandomKey(t))
		assert.ErrorIs(t, err, ErrOptionNotFound)
	})

	t.Run("concurrent exercises commit exactly once", func(t *testing.T) {
		h := newLifecycleHarness(t)
		option := h.newOption(time.Hour)

		const attempts = 8
		errs := make([]error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = h.exercise(h.owner, option.Key)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, ErrOptionNotActive)
		}
		assert.Equal(t, 1, succeeded)
	})
}

func TestExpireOption(t *testing.T) {
	t.Run("expires after expiration and blocks exercise", func(t *testing.T) {
		h := newLifecycleHarness(t)
		option := h.newOption(10 * time.Second)

		h.clock.Add(20 * time.Second)
		record, err := h.expire(h.owner, option.Key)
		require.NoError(t, err)
		assert.Equal(t, interfaces.OptionStatusExpired, record.Status)

		_, err = h.exercise(h.owner, option.Key)
		assert.ErrorIs(t, err, ErrOptionNotActive)

		_, err = h.expire(h.owner, option.Key)
		assert.ErrorIs(t, err, ErrOptionNotActive)
	})

	t.Run("not yet expired", func(t *testing.T) {
		h := newLifecycleHarness(t)
		option := h.newOption(time.Hour)

		_, err := h.expire(h.owner, option.Key)
		assert.ErrorIs(t, err, ErrOptionNotExpired)

		h.clock.Add(time.Hour)
		_, err = h.expire(h.owner, option.Key)
		assert.ErrorIs(t, err, ErrOptionNotExpired)
		assert.Equal(t, interfaces.OptionStatusActive, h.stored(option.Key).Status)
	})

	t.Run("exercised option is not active", func(t *testing.T) {
		h := newLifecycleHarness(t)
		option := h.newOption(time.Hour)
		_, err := h.exercise(h.owner, option.Key)
		require.NoError(t, err)

		h.clock.Add(2 * time.Hour)
		_, err = h.expire(h.owner, option.Key)
		assert.ErrorIs(t, err, ErrOptionNotActive)
		assert.Equal(t, interfaces.OptionStatusExercised, h.stored(option.Key).Status)
	})

	t.Run("requires the owner", func(t *testing.T) {
		h := newLifecycleHarness(t)
		option := h.newOption(time.Second)

		h.clock.Add(time.Minute)
		_, err := h.expire(h.stranger, option.Key)
		assert.ErrorIs(t, err, ErrUnauthorizedCaller)
		assert.Equal(t, interfaces.OptionStatusActive, h.stored(option.Key).Status)
	})
}

func TestCloseOption(t *testing.T) {
	t.Run("destroys an active option and releases to owner", func(t *testing.T) {
		h := newLifecycleHarness(t)
		option := h.newOption(time.Hour)

		record, err := h.close(h.owner, option.Key)
		require.NoError(t, err)
		assert.Equal(t, interfaces.OptionStatusExpired, record.Status)

		_, err = h.ledger.GetRecord(context.Background(), option.Key)
		assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)

		recipient, ok := h.ledger.ReleasedTo(option.Key)
		require.True(t, ok)
		assert.Equal(t, h.owner, recipient)

		_, err = h.exercise(h.owner, option.Key)
		assert.ErrorIs(t, err, ErrOptionNotFound)
		_, err = h.close(h.owner, option.Key)
		assert.ErrorIs(t, err, ErrOptionNotFound)
	})

	t.Run("terminal options are already closed", func(t *testing.T) {
		h := newLifecycleHarness(t)
		exercised := h.newOption(time.Hour)
		expired := h.newOption(time.Second)

		_, err := h.exercise(h.owner, exercised.Key)
		require.NoError(t, err)
		h.clock.Add(time.Minute)
		_, err = h.expire(h.owner, expired.Key)
		require.NoError(t, err)

		_, err = h.close(h.owner, exercised.Key)
		assert.ErrorIs(t, err, ErrOptionAlreadyClosed)
		_, err = h.close(h.owner, expired.Key)
		assert.ErrorIs(t, err, ErrOptionAlreadyClosed)

		assert.Equal(t, interfaces.OptionStatusExercised, h.stored(exercised.Key).Status)
		assert.Equal(t, interfaces.OptionStatusExpired, h.stored(expired.Key).Status)
	})

	t.Run("requires the owner", func(t *testing.T) {
		h := newLifecycleHarness(t)
		option := h.newOption(time.Hour)

		_, err := h.close(h.stranger, option.Key)
		assert.ErrorIs(t, err, ErrUnauthorizedCaller)
		assert.Equal(t, interfaces.OptionStatusActive, h.stored(option.Key).Status)
	})
}

func TestTerminalStatesNeverChange(t *testing.T) {
	h := newLifecycleHarness(t)
	exercised := h.newOption(time.Hour)
	expired := h.newOption(time.Second)

	_, err := h.exercise(h.owner, exercised.Key)
	require.NoError(t, err)
	h.clock.Add(time.Minute)
	_, err = h.expire(h.owner, expired.Key)
	require.NoError(t, err)

	ops := []func(caller, key interfaces.PublicKey) (*interfaces.OptionRecord, error){
		h.exercise, h.expire, h.close,
	}
	for round := 0; round < 3; round++ {
		for _, op := range ops {
			for _, caller := range []interfaces.PublicKey{h.owner, h.stranger} {
				_, err := op(caller, exercised.Key)
				assert.Error(t, err)
				_, err = op(caller, expired.Key)
				assert.Error(t, err)
			}
		}
		h.clock.Add(time.Hour)
	}

	assert.Equal(t, interfaces.OptionStatusExercised, h.stored(exercised.Key).Status)
	assert.Equal(t, interfaces.OptionStatusExpired, h.stored(expired.Key).Status)
}
