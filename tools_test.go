package main

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"testing"

	"option-ledger/interfaces"
	"option-ledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommand(t *testing.T) {
	owner, err := interfaces.NewRandomPublicKey()
	require.NoError(t, err)
	asset, err := interfaces.NewRandomPublicKey()
	require.NoError(t, err)

	account := models.EncodeOptionAccount(&interfaces.OptionRecord{
		Owner:               owner,
		UnderlyingAsset:     asset,
		OptionType:          interfaces.OptionTypePut,
		StrikePrice:         100,
		PremiumPrice:        5,
		Quantity:            10,
		CreationTimestamp:   1000,
		ExpirationTimestamp: 2000,
		Status:              interfaces.OptionStatusExercised,
	})

	encodings := map[string]string{
		"hex":        hex.EncodeToString(account),
		"prefixed":   "0x" + hex.EncodeToString(account),
		"base64":     base64.StdEncoding.EncodeToString(account),
		"whitespace": " " + hex.EncodeToString(account) + "\n",
	}

	for name, arg := range encodings {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			decodeCmd.SetOut(&out)
			require.NoError(t, decodeCmd.RunE(decodeCmd, []string{arg}))

			var decoded map[string]interface{}
			require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
			assert.Equal(t, owner.String(), decoded["owner"])
			assert.Equal(t, "put", decoded["option_type"])
			assert.Equal(t, "exercised", decoded["status"])
			assert.Equal(t, float64(2000), decoded["expiration_timestamp"])
		})
	}

	t.Run("rejects garbage", func(t *testing.T) {
		err := decodeCmd.RunE(decodeCmd, []string{"not*an*account"})
		assert.Error(t, err)
	})

	t.Run("rejects short account", func(t *testing.T) {
		err := decodeCmd.RunE(decodeCmd, []string{hex.EncodeToString(account[:50])})
		assert.Error(t, err)
	})
}

func TestKeygenCommand(t *testing.T) {
	var out bytes.Buffer
	keygenCmd.SetOut(&out)
	require.NoError(t, keygenCmd.RunE(keygenCmd, nil))

	var keys map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &keys))

	_, err := interfaces.ParsePublicKey(keys["public_key"])
	assert.NoError(t, err)
	assert.NotEmpty(t, keys["private_key"])
}
