package batch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAddr returns a valid base58 32-byte address seeded by b.
func testAddr(b byte) string {
	var raw [32]byte
	raw[0] = b
	return base58.Encode(raw[:])
}

func TestLoad(t *testing.T) {
	t.Run("ValidEntries", func(t *testing.T) {
		entries := []Entry{
			{Recipient: testAddr(1), Amount: "0.356"},
			{Recipient: testAddr(2), Amount: "0.445"},
		}

		b, err := Load(entries, 9)
		require.NoError(t, err)
		require.Len(t, b.Records, 2)

		for i, rec := range b.Records {
			assert.Equal(t, i, rec.Index)
			assert.Equal(t, StatePending, rec.State)
			assert.Empty(t, rec.Handle)
			assert.Zero(t, rec.Attempts)
		}
		assert.Equal(t, "0.356", b.Records[0].Request.Amount.String())
		assert.Equal(t, "0.801", b.Total().String())
	})

	t.Run("DuplicatePairsStayDistinct", func(t *testing.T) {
		entries := []Entry{
			{Recipient: testAddr(1), Amount: "0.5"},
			{Recipient: testAddr(1), Amount: "0.5"},
		}

		b, err := Load(entries, 9)
		require.NoError(t, err)
		require.Len(t, b.Records, 2)
		assert.NotEqual(t, b.Records[0].Index, b.Records[1].Index)
	})

	t.Run("Deterministic", func(t *testing.T) {
		entries := []Entry{
			{Recipient: testAddr(1), Amount: "1.25"},
			{Recipient: testAddr(2), Amount: "3"},
		}

		first, err := Load(entries, 9)
		require.NoError(t, err)
		second, err := Load(entries, 9)
		require.NoError(t, err)

		firstJSON, err := json.Marshal(first)
		require.NoError(t, err)
		secondJSON, err := json.Marshal(second)
		require.NoError(t, err)
		assert.Equal(t, firstJSON, secondJSON)
	})

	t.Run("RejectsMalformedAddress", func(t *testing.T) {
		_, err := Load([]Entry{{Recipient: "not-base58-0OIl", Amount: "1"}}, 9)
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("RejectsShortAddress", func(t *testing.T) {
		short := base58.Encode([]byte{1, 2, 3})
		_, err := Load([]Entry{{Recipient: short, Amount: "1"}}, 9)
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("RejectsNonPositiveAmounts", func(t *testing.T) {
		for _, amount := range []string{"0", "-1", "-0.5"} {
			_, err := Load([]Entry{{Recipient: testAddr(1), Amount: amount}}, 9)
			assert.ErrorIs(t, err, ErrValidation, "amount %s", amount)
		}
	})

	t.Run("RejectsExcessPrecision", func(t *testing.T) {
		_, err := Load([]Entry{{Recipient: testAddr(1), Amount: "0.1234"}}, 3)
		require.ErrorIs(t, err, ErrValidation)

		_, err = Load([]Entry{{Recipient: testAddr(1), Amount: "0.123"}}, 3)
		require.NoError(t, err)
	})

	t.Run("OneBadEntryRejectsWholeLoad", func(t *testing.T) {
		entries := []Entry{
			{Recipient: testAddr(1), Amount: "1"},
			{Recipient: testAddr(2), Amount: "bogus"},
		}
		b, err := Load(entries, 9)
		require.ErrorIs(t, err, ErrValidation)
		assert.Nil(t, b)
	})
}

func TestReadCSV(t *testing.T) {
	writeCSV := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "transfers.csv")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	t.Run("ParsesWalletAmountRows", func(t *testing.T) {
		path := writeCSV(t, "wallet,amount\n"+testAddr(1)+",0.356\n"+testAddr(2)+",0.445\n")

		entries, err := ReadCSV(path)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, testAddr(1), entries[0].Recipient)
		assert.Equal(t, "0.356", entries[0].Amount)
	})

	t.Run("StripsThousandsSeparators", func(t *testing.T) {
		path := writeCSV(t, "wallet,amount\n"+testAddr(1)+",\"1,250.5\"\n")

		entries, err := ReadCSV(path)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "1250.5", entries[0].Amount)
	})

	t.Run("RejectsNonCSVExtension", func(t *testing.T) {
		_, err := ReadCSV("transfers.json")
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("RejectsMissingColumns", func(t *testing.T) {
		path := writeCSV(t, "recipient,value\nx,1\n")
		_, err := ReadCSV(path)
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("RejectsEmptyFile", func(t *testing.T) {
		path := writeCSV(t, "")
		_, err := ReadCSV(path)
		require.ErrorIs(t, err, ErrValidation)
	})
}
