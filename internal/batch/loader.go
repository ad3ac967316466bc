package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// publicKeyLength is the byte length of a Solana public key.
const publicKeyLength = 32

// ErrValidation indicates malformed input. A single bad entry rejects the
// whole load so a batch is never partially or ambiguously initialized.
var ErrValidation = errors.New("invalid transfer input")

// Entry is one raw (recipient, amount) pair before validation.
type Entry struct {
	Recipient string
	Amount    string
}

// Load validates raw entries into a Batch of pending records, preserving
// input order. maxDecimals bounds the fractional precision of amounts
// (the token's configured decimals). Load is deterministic: identical input
// always yields identical records.
func Load(entries []Entry, maxDecimals int) (*Batch, error) {
	records := make([]TransferRecord, 0, len(entries))
	for i, entry := range entries {
		request, err := validateEntry(entry, maxDecimals)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrValidation, i, err)
		}
		records = append(records, TransferRecord{
			Index:   i,
			Request: request,
			State:   StatePending,
		})
	}
	return &Batch{Records: records}, nil
}

// validateEntry checks one raw pair and returns the canonical request.
func validateEntry(entry Entry, maxDecimals int) (TransferRequest, error) {
	recipient := strings.TrimSpace(entry.Recipient)
	if recipient == "" {
		return TransferRequest{}, errors.New("empty recipient address")
	}
	decoded, err := base58.Decode(recipient)
	if err != nil {
		return TransferRequest{}, fmt.Errorf("recipient %q is not valid base58: %w", recipient, err)
	}
	if len(decoded) != publicKeyLength {
		return TransferRequest{}, fmt.Errorf("recipient %q decodes to %d bytes, want %d",
			recipient, len(decoded), publicKeyLength)
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(entry.Amount))
	if err != nil {
		return TransferRequest{}, fmt.Errorf("amount %q is not a valid decimal: %w", entry.Amount, err)
	}
	if !amount.IsPositive() {
		return TransferRequest{}, fmt.Errorf("amount %s must be positive", amount)
	}
	if int(-amount.Exponent()) > maxDecimals {
		return TransferRequest{}, fmt.Errorf("amount %s exceeds token precision of %d decimals",
			amount, maxDecimals)
	}

	return TransferRequest{Recipient: recipient, Amount: amount}, nil
}

// ReadCSV parses a transfer CSV file into raw entries. The file must have a
// header line naming at least the "wallet" and "amount" columns, matching the
// input format of the bulk transfer workflow:
//
//	wallet,amount
//	Cy4y1XGR9pj7vFikWVGrdQAPWCChqV9gQHCLht6eXBLW,0.356
//
// Thousands separators in amounts are stripped.
func ReadCSV(path string) ([]Entry, error) {
	if filepath.Ext(path) != ".csv" {
		return nil, fmt.Errorf("%w: unsupported file type %q, expecting .csv",
			ErrValidation, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transfer file: %w", err)
	}
	defer f.Close()

	return parseCSV(f)
}

// parseCSV reads entries from an open CSV stream.
func parseCSV(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty transfer file", ErrValidation)
		}
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	walletCol, amountCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "wallet":
			walletCol = i
		case "amount":
			amountCol = i
		}
	}
	if walletCol < 0 || amountCol < 0 {
		return nil, fmt.Errorf("%w: csv header must contain wallet and amount columns, got %v",
			ErrValidation, header)
	}

	var entries []Entry
	for {
		row, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("reading csv row: %w", readErr)
		}
		entries = append(entries, Entry{
			Recipient: row[walletCol],
			Amount:    strings.ReplaceAll(row[amountCol], ",", ""),
		})
	}
	return entries, nil
}
