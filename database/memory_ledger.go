package database

import (
	"context"
	"sort"
	"sync"

	"option-ledger/interfaces"
)

// MemoryLedger is an in-process arena of option records.
// Each instance is independent, so tests can run against isolated ledgers.
type MemoryLedger struct {
	mu       sync.Mutex
	clock    interfaces.Clock
	records  map[interfaces.PublicKey]*interfaces.OptionRecord
	order    map[interfaces.PublicKey]uint64
	seq      uint64
	events   []*interfaces.LedgerEvent
	released map[interfaces.PublicKey]interfaces.PublicKey
}

// NewMemoryLedger creates an empty arena driven by clock
func NewMemoryLedger(clock interfaces.Clock) *MemoryLedger {
	if clock == nil {
		clock = interfaces.SystemClock{}
	}
	return &MemoryLedger{
		clock:    clock,
		records:  make(map[interfaces.PublicKey]*interfaces.OptionRecord),
		order:    make(map[interfaces.PublicKey]uint64),
		released: make(map[interfaces.PublicKey]interfaces.PublicKey),
	}
}

// Execute runs fn against a staged view; staged writes commit only if fn returns nil
func (m *MemoryLedger) Execute(ctx context.Context, caller interfaces.PublicKey, fn func(interfaces.ExecutionContext) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{
		ledger:  m,
		caller:  caller,
		now:     m.clock.Now().Unix(),
		writes:  make(map[interfaces.PublicKey]*interfaces.OptionRecord),
		deleted: make(map[interfaces.PublicKey]interfaces.PublicKey),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for _, key := range tx.allocated {
		m.seq++
		m.order[key] = m.seq
	}
	for key, record := range tx.writes {
		m.records[key] = record
	}
	for key, recipient := range tx.deleted {
		delete(m.records, key)
		delete(m.order, key)
		m.released[key] = recipient
	}
	return nil
}

func (m *MemoryLedger) GetRecord(ctx context.Context, key interfaces.PublicKey) (*interfaces.OptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[key]
	if !ok {
		return nil, interfaces.ErrRecordNotFound
	}
	return record.Clone(), nil
}

// ListRecords returns matching records, newest first
func (m *MemoryLedger) ListRecords(ctx context.Context, filter interfaces.OptionFilter) ([]*interfaces.OptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]*interfaces.OptionRecord, 0, len(m.records))
	for _, record := range m.records {
		if filter.Matches(record) {
			records = append(records, record.Clone())
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return m.order[records[i].Key] > m.order[records[j].Key]
	})
	return records, nil
}

func (m *MemoryLedger) SaveEvent(ctx context.Context, event *interfaces.LedgerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := *event
	m.events = append(m.events, &e)
	return nil
}

func (m *MemoryLedger) ListEvents(ctx context.Context, recordKey interfaces.PublicKey) ([]*interfaces.LedgerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := make([]*interfaces.LedgerEvent, 0)
	for _, event := range m.events {
		if event.RecordKey == recordKey {
			e := *event
			events = append(events, &e)
		}
	}
	return events, nil
}

// ReleasedTo reports who received the resources of a destroyed slot
func (m *MemoryLedger) ReleasedTo(key interfaces.PublicKey) (interfaces.PublicKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recipient, ok := m.released[key]
	return recipient, ok
}

type memoryTx struct {
	ledger    *MemoryLedger
	caller    interfaces.PublicKey
	now       int64
	writes    map[interfaces.PublicKey]*interfaces.OptionRecord
	deleted   map[interfaces.PublicKey]interfaces.PublicKey
	allocated []interfaces.PublicKey
}

func (t *memoryTx) CurrentTime() int64 {
	return t.now
}

func (t *memoryTx) Caller() interfaces.PublicKey {
	return t.caller
}

func (t *memoryTx) Allocate(record *interfaces.OptionRecord) (interfaces.PublicKey, error) {
	key, err := interfaces.NewRandomPublicKey()
	if err != nil {
		return interfaces.PublicKey{}, err
	}
	record.Key = key
	t.writes[key] = record.Clone()
	t.allocated = append(t.allocated, key)
	return key, nil
}

func (t *memoryTx) Load(key interfaces.PublicKey) (*interfaces.OptionRecord, error) {
	if _, gone := t.deleted[key]; gone {
		return nil, interfaces.ErrRecordNotFound
	}
	if record, ok := t.writes[key]; ok {
		return record.Clone(), nil
	}
	if record, ok := t.ledger.records[key]; ok {
		return record.Clone(), nil
	}
	return nil, interfaces.ErrRecordNotFound
}

func (t *memoryTx) Store(record *interfaces.OptionRecord) error {
	if _, err := t.Load(record.Key); err != nil {
		return err
	}
	t.writes[record.Key] = record.Clone()
	return nil
}

func (t *memoryTx) Destroy(key interfaces.PublicKey, recipient interfaces.PublicKey) error {
	if _, err := t.Load(key); err != nil {
		return err
	}
	delete(t.writes, key)
	t.deleted[key] = recipient
	return nil
}
