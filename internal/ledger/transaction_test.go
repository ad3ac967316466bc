package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeypair(t *testing.T) *Keypair {
	t.Helper()
	_, private, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	kp, err := NewKeypairFromPrivateKey(private)
	require.NoError(t, err)
	return kp
}

func testPublicKey(b byte) PublicKey {
	var pk PublicKey
	pk[0] = b
	return pk
}

func TestAppendCompactU16(t *testing.T) {
	tests := []struct {
		value int
		want  []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{255, []byte{0xff, 0x01}},
		{16383, []byte{0xff, 0x7f}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, appendCompactU16(nil, tt.value), "value %d", tt.value)
	}
}

func TestParsePublicKey(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		pk7 := testPublicKey(7)
		address := base58.Encode(pk7[:])
		pk, err := ParsePublicKey(address)
		require.NoError(t, err)
		assert.Equal(t, address, pk.String())
	})

	t.Run("RejectsNonBase58", func(t *testing.T) {
		_, err := ParsePublicKey("not-base58-0OIl")
		require.Error(t, err)
	})

	t.Run("RejectsWrongLength", func(t *testing.T) {
		_, err := ParsePublicKey(base58.Encode([]byte{1, 2, 3}))
		require.Error(t, err)
	})
}

func TestTokenAmount(t *testing.T) {
	t.Run("ShiftsByDecimals", func(t *testing.T) {
		native, err := tokenAmount(decimal.RequireFromString("0.356"), 9)
		require.NoError(t, err)
		assert.Equal(t, uint64(356_000_000), native)

		native, err = tokenAmount(decimal.RequireFromString("12"), 6)
		require.NoError(t, err)
		assert.Equal(t, uint64(12_000_000), native)
	})

	t.Run("RejectsExcessPrecision", func(t *testing.T) {
		_, err := tokenAmount(decimal.RequireFromString("0.1234567"), 6)
		require.ErrorContains(t, err, "precision")
	})

	t.Run("RejectsNonPositive", func(t *testing.T) {
		_, err := tokenAmount(decimal.Zero, 9)
		require.Error(t, err)
		_, err = tokenAmount(decimal.RequireFromString("-1"), 9)
		require.Error(t, err)
	})

	t.Run("RejectsOverflow", func(t *testing.T) {
		_, err := tokenAmount(decimal.RequireFromString("99999999999999999999"), 9)
		require.ErrorContains(t, err, "overflow")
	})
}

func TestAssociatedTokenAddress(t *testing.T) {
	wallet := testKeypair(t).PublicKey()
	mint := testPublicKey(3)

	ata, err := AssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)

	// A derived address never has a corresponding private key.
	assert.False(t, isOnCurve(ata[:]))

	// Derivation is deterministic per (wallet, mint) and distinct across
	// wallets.
	again, err := AssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)
	assert.Equal(t, ata, again)

	other, err := AssociatedTokenAddress(testKeypair(t).PublicKey(), mint)
	require.NoError(t, err)
	assert.NotEqual(t, ata, other)
}

func TestBuildTransfer(t *testing.T) {
	keypair := testKeypair(t)
	mint := testPublicKey(3)
	recipient := testKeypair(t).PublicKey()
	blockhash := testPublicKey(9)

	wire, signature, err := BuildTransfer(
		keypair, mint, 9, recipient.String(), decimal.RequireFromString("0.356"), blockhash)
	require.NoError(t, err)

	// Wire form: compact-u16 signature count, one 64-byte signature, then
	// the message.
	require.Greater(t, len(wire), 1+signatureLength)
	assert.Equal(t, byte(1), wire[0])

	sig := wire[1 : 1+signatureLength]
	message := wire[1+signatureLength:]
	assert.Equal(t, signature, base58.Encode(sig))
	owner := keypair.PublicKey()
	assert.True(t, ed25519.Verify(ed25519.PublicKey(owner[:]), message, sig))

	// Message header: one signer (the fee payer), no read-only signers.
	assert.Equal(t, byte(1), message[0])
	assert.Equal(t, byte(0), message[1])

	// The fee payer leads the account table.
	feePayerStart := 4
	assert.Equal(t, owner.String(), base58.Encode(message[feePayerStart:feePayerStart+32]))

	// Signing is deterministic for a fixed blockhash, so a resubmission of
	// the identical transfer carries the identical signature.
	_, again, err := BuildTransfer(
		keypair, mint, 9, recipient.String(), decimal.RequireFromString("0.356"), blockhash)
	require.NoError(t, err)
	assert.Equal(t, signature, again)
}

func TestBuildTransferRejectsBadInput(t *testing.T) {
	keypair := testKeypair(t)
	mint := testPublicKey(3)
	blockhash := testPublicKey(9)

	_, _, err := BuildTransfer(keypair, mint, 9, "bogus", decimal.RequireFromString("1"), blockhash)
	require.Error(t, err)

	recipient := testKeypair(t).PublicKey().String()
	_, _, err = BuildTransfer(keypair, mint, 2, recipient, decimal.RequireFromString("0.001"), blockhash)
	require.ErrorContains(t, err, "precision")
}
