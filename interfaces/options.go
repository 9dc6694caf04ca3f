package interfaces

import (
	"fmt"
	"strings"
)

// OptionType distinguishes calls from puts
type OptionType uint8

const (
	OptionTypeCall OptionType = 0
	OptionTypePut  OptionType = 1
)

// String returns the lower-case name used in JSON and logs
func (t OptionType) String() string {
	switch t {
	case OptionTypeCall:
		return "call"
	case OptionTypePut:
		return "put"
	}
	return fmt.Sprintf("OptionType(%d)", uint8(t))
}

// Valid reports whether t is a known option type
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// ParseOptionType parses "call" or "put" (case-insensitive)
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call":
		return OptionTypeCall, nil
	case "put":
		return OptionTypePut, nil
	}
	return 0, fmt.Errorf("unknown option type %q", s)
}

func (t OptionType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid option type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *OptionType) UnmarshalText(text []byte) error {
	parsed, err := ParseOptionType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// OptionStatus drives the option state machine.
// Exercised and Expired are terminal.
type OptionStatus uint8

const (
	OptionStatusActive    OptionStatus = 0
	OptionStatusExercised OptionStatus = 1
	OptionStatusExpired   OptionStatus = 2
)

func (s OptionStatus) String() string {
	switch s {
	case OptionStatusActive:
		return "active"
	case OptionStatusExercised:
		return "exercised"
	case OptionStatusExpired:
		return "expired"
	}
	return fmt.Sprintf("OptionStatus(%d)", uint8(s))
}

// Valid reports whether s is a known status
func (s OptionStatus) Valid() bool {
	return s <= OptionStatusExpired
}

// IsTerminal reports whether no further transition may leave s
func (s OptionStatus) IsTerminal() bool {
	return s == OptionStatusExercised || s == OptionStatusExpired
}

// ParseOptionStatus parses "active", "exercised" or "expired" (case-insensitive)
func ParseOptionStatus(s string) (OptionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return OptionStatusActive, nil
	case "exercised":
		return OptionStatusExercised, nil
	case "expired":
		return OptionStatusExpired, nil
	}
	return 0, fmt.Errorf("unknown option status %q", s)
}

func (s OptionStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid option status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *OptionStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseOptionStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// OptionRecord is the persisted state of one option contract.
// Key identifies the storage slot; the remaining fields make up the account data.
type OptionRecord struct {
	Key                 PublicKey    `json:"key"`
	Owner               PublicKey    `json:"owner"`
	UnderlyingAsset     PublicKey    `json:"underlying_asset"`
	OptionType          OptionType   `json:"option_type"`
	StrikePrice         uint64       `json:"strike_price"`
	PremiumPrice        uint64       `json:"premium_price"`
	Quantity            uint64       `json:"quantity"`
	CreationTimestamp   uint64       `json:"creation_timestamp"`
	ExpirationTimestamp uint64       `json:"expiration_timestamp"`
	Status              OptionStatus `json:"status"`
}

// IsTerminal reports whether the record can no longer change status
func (r *OptionRecord) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// IsExpiredAt reports whether now is past the expiration timestamp
func (r *OptionRecord) IsExpiredAt(now int64) bool {
	return now > 0 && uint64(now) > r.ExpirationTimestamp
}

// Clone returns an independent copy of the record
func (r *OptionRecord) Clone() *OptionRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// OptionFilter narrows record listings. Zero values match everything.
type OptionFilter struct {
	Owner  *PublicKey
	Status *OptionStatus
}

// Matches reports whether record satisfies the filter
func (f OptionFilter) Matches(record *OptionRecord) bool {
	if f.Owner != nil && record.Owner != *f.Owner {
		return false
	}
	if f.Status != nil && record.Status != *f.Status {
		return false
	}
	return true
}
