package ledger

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"
)

// Keypair is a loaded ed25519 signing key plus its base58 public address.
type Keypair struct {
	private ed25519.PrivateKey
	Address string
}

// LoadKeypair reads a keypair file in the standard Solana id.json format: a
// JSON array of 64 bytes (32-byte seed followed by the 32-byte public key).
// A leading ~ in the path is expanded to the user home directory.
func LoadKeypair(path string) (*Keypair, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("expanding keypair path: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keypair file %s: %w", path, err)
	}

	// encoding/json decodes []byte from base64, so the numeric array needs an
	// intermediate form.
	var nums []int
	if unmarshalErr := json.Unmarshal(data, &nums); unmarshalErr != nil {
		return nil, fmt.Errorf("parsing keypair file %s: %w", path, unmarshalErr)
	}
	if len(nums) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair file %s holds %d bytes, want %d",
			path, len(nums), ed25519.PrivateKeySize)
	}
	raw := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("keypair file %s: byte %d out of range", path, i)
		}
		raw[i] = byte(n)
	}

	private := ed25519.PrivateKey(raw)
	public, ok := private.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("keypair file %s: unexpected public key type", path)
	}

	return &Keypair{
		private: private,
		Address: base58.Encode(public),
	}, nil
}

// NewKeypairFromPrivateKey wraps an existing ed25519 private key. Used by
// tests that generate throwaway keys.
func NewKeypairFromPrivateKey(private ed25519.PrivateKey) (*Keypair, error) {
	if len(private) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key holds %d bytes, want %d",
			len(private), ed25519.PrivateKeySize)
	}
	public, ok := private.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unexpected public key type")
	}
	return &Keypair{private: private, Address: base58.Encode(public)}, nil
}

// Sign signs a message with the wallet's private key.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}

// PublicKey returns the wallet's 32-byte public key.
func (k *Keypair) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], k.private[32:])
	return pk
}
