package models

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"option-ledger/interfaces"
)

// Account layout, little-endian, in field order:
//
//	underlying asset  32
//	strike price       8
//	expiration         8
//	owner             32
//	option type        1
//	creation time      8
//	status             1
//	quantity           8
//	premium            8
const (
	DiscriminatorSize = 8
	OptionRecordSize  = 106
	OptionAccountSize = DiscriminatorSize + OptionRecordSize

	offsetUnderlying = 0
	offsetStrike     = offsetUnderlying + interfaces.PublicKeySize
	offsetExpiration = offsetStrike + 8
	offsetOwner      = offsetExpiration + 8
	offsetOptionType = offsetOwner + interfaces.PublicKeySize
	offsetCreation   = offsetOptionType + 1
	offsetStatus     = offsetCreation + 8
	offsetQuantity   = offsetStatus + 1
	offsetPremium    = offsetQuantity + 8
)

// OptionAccountDiscriminator prefixes every stored option account
var OptionAccountDiscriminator = accountDiscriminator("OptionState")

func accountDiscriminator(name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// EncodeOptionRecord writes the record body without the discriminator
func EncodeOptionRecord(r *interfaces.OptionRecord) []byte {
	buf := make([]byte, OptionRecordSize)
	copy(buf[offsetUnderlying:], r.UnderlyingAsset[:])
	binary.LittleEndian.PutUint64(buf[offsetStrike:], r.StrikePrice)
	binary.LittleEndian.PutUint64(buf[offsetExpiration:], r.ExpirationTimestamp)
	copy(buf[offsetOwner:], r.Owner[:])
	buf[offsetOptionType] = uint8(r.OptionType)
	binary.LittleEndian.PutUint64(buf[offsetCreation:], r.CreationTimestamp)
	buf[offsetStatus] = uint8(r.Status)
	binary.LittleEndian.PutUint64(buf[offsetQuantity:], r.Quantity)
	binary.LittleEndian.PutUint64(buf[offsetPremium:], r.PremiumPrice)
	return buf
}

// EncodeOptionAccount writes the full account: discriminator followed by the record body
func EncodeOptionAccount(r *interfaces.OptionRecord) []byte {
	buf := make([]byte, 0, OptionAccountSize)
	buf = append(buf, OptionAccountDiscriminator[:]...)
	return append(buf, EncodeOptionRecord(r)...)
}

// DecodeOptionAccount parses either a full account or a bare record body.
// The returned record has a zero Key; slots are identified by the caller.
func DecodeOptionAccount(data []byte) (*interfaces.OptionRecord, error) {
	switch len(data) {
	case OptionAccountSize:
		if !bytes.Equal(data[:DiscriminatorSize], OptionAccountDiscriminator[:]) {
			return nil, fmt.Errorf("account discriminator mismatch")
		}
		return decodeRecordBody(data[DiscriminatorSize:])
	case OptionRecordSize:
		return decodeRecordBody(data)
	}
	return nil, fmt.Errorf("invalid option account length %d: expected %d or %d", len(data), OptionAccountSize, OptionRecordSize)
}

func decodeRecordBody(buf []byte) (*interfaces.OptionRecord, error) {
	r := &interfaces.OptionRecord{
		StrikePrice:         binary.LittleEndian.Uint64(buf[offsetStrike:]),
		ExpirationTimestamp: binary.LittleEndian.Uint64(buf[offsetExpiration:]),
		OptionType:          interfaces.OptionType(buf[offsetOptionType]),
		CreationTimestamp:   binary.LittleEndian.Uint64(buf[offsetCreation:]),
		Status:              interfaces.OptionStatus(buf[offsetStatus]),
		Quantity:            binary.LittleEndian.Uint64(buf[offsetQuantity:]),
		PremiumPrice:        binary.LittleEndian.Uint64(buf[offsetPremium:]),
	}
	copy(r.UnderlyingAsset[:], buf[offsetUnderlying:offsetStrike])
	copy(r.Owner[:], buf[offsetOwner:offsetOptionType])

	if !r.OptionType.Valid() {
		return nil, fmt.Errorf("invalid option type byte %d", buf[offsetOptionType])
	}
	if !r.Status.Valid() {
		return nil, fmt.Errorf("invalid status byte %d", buf[offsetStatus])
	}
	return r, nil
}
