package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// Well-known program addresses involved in an SPL token transfer.
const (
	tokenProgramAddress       = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	ataProgramAddress         = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	systemProgramAddress      = "11111111111111111111111111111111"
	pdaMarker                 = "ProgramDerivedAddress"
	transferCheckedOpcode     = 12
	createIdempotentOpcode    = 1
	signatureLength           = 64
	maxSeedBump               = 255
	compactU16ContinuationBit = 0x80
)

// PublicKey is a 32-byte Solana account address.
type PublicKey [32]byte

// ParsePublicKey decodes a base58 address into a PublicKey.
func ParsePublicKey(address string) (PublicKey, error) {
	var pk PublicKey
	decoded, err := base58.Decode(address)
	if err != nil {
		return pk, fmt.Errorf("decoding address %q: %w", address, err)
	}
	if len(decoded) != len(pk) {
		return pk, fmt.Errorf("address %q decodes to %d bytes, want %d", address, len(decoded), len(pk))
	}
	copy(pk[:], decoded)
	return pk, nil
}

// String returns the base58 form of the key.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// mustParsePublicKey parses a compile-time-known address.
func mustParsePublicKey(address string) PublicKey {
	pk, err := ParsePublicKey(address)
	if err != nil {
		panic(err)
	}
	return pk
}

//nolint:gochecknoglobals // Fixed program addresses.
var (
	tokenProgramID  = mustParsePublicKey(tokenProgramAddress)
	ataProgramID    = mustParsePublicKey(ataProgramAddress)
	systemProgramID = mustParsePublicKey(systemProgramAddress)
)

// isOnCurve reports whether b is a valid ed25519 curve point. Program derived
// addresses must not be on the curve, so nobody holds a key for them.
func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// findProgramAddress derives the program address for the given seeds, walking
// the bump seed down from 255 until the hash falls off the curve.
func findProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, error) {
	for bump := maxSeedBump; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(program[:])
		h.Write([]byte(pdaMarker))
		candidate := h.Sum(nil)
		if !isOnCurve(candidate) {
			var pk PublicKey
			copy(pk[:], candidate)
			return pk, nil
		}
	}
	return PublicKey{}, errors.New("unable to find a viable program address bump seed")
}

// AssociatedTokenAddress derives the associated token account that holds
// wallet's balance of mint.
func AssociatedTokenAddress(wallet, mint PublicKey) (PublicKey, error) {
	return findProgramAddress([][]byte{wallet[:], tokenProgramID[:], mint[:]}, ataProgramID)
}

// accountMeta describes one account referenced by a transaction message.
type accountMeta struct {
	key      PublicKey
	signer   bool
	writable bool
}

// instruction is one program invocation within a transaction.
type instruction struct {
	program  PublicKey
	accounts []accountMeta
	data     []byte
}

// tokenAmount converts a decimal token amount to its native integer
// representation given the mint's decimals.
func tokenAmount(amount decimal.Decimal, decimals int) (uint64, error) {
	shifted := amount.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %s exceeds token precision of %d decimals", amount, decimals)
	}
	if shifted.Sign() <= 0 {
		return 0, fmt.Errorf("amount %s must be positive", amount)
	}
	big := shifted.BigInt()
	if !big.IsUint64() {
		return 0, fmt.Errorf("amount %s overflows the native token range", amount)
	}
	return big.Uint64(), nil
}

// buildTransferInstructions produces the instructions for one checked token
// transfer: an idempotent create of the recipient's associated account
// followed by the transfer itself. The create is a no-op on the ledger when
// the account already exists, mirroring the create-if-missing behavior of the
// interactive transfer flow.
func buildTransferInstructions(
	owner, mint, recipient PublicKey,
	amount uint64,
	decimals int,
) ([]instruction, error) {
	source, err := AssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("deriving sender token account: %w", err)
	}
	dest, err := AssociatedTokenAddress(recipient, mint)
	if err != nil {
		return nil, fmt.Errorf("deriving recipient token account: %w", err)
	}

	create := instruction{
		program: ataProgramID,
		accounts: []accountMeta{
			{key: owner, signer: true, writable: true},
			{key: dest, writable: true},
			{key: recipient},
			{key: mint},
			{key: systemProgramID},
			{key: tokenProgramID},
		},
		data: []byte{createIdempotentOpcode},
	}

	data := make([]byte, 0, 10)
	data = append(data, transferCheckedOpcode)
	data = binary.LittleEndian.AppendUint64(data, amount)
	data = append(data, byte(decimals))

	transfer := instruction{
		program: tokenProgramID,
		accounts: []accountMeta{
			{key: source, writable: true},
			{key: mint},
			{key: dest, writable: true},
			{key: owner, signer: true},
		},
		data: data,
	}

	return []instruction{create, transfer}, nil
}

// appendCompactU16 appends the Solana shortvec encoding of v.
func appendCompactU16(buf []byte, v int) []byte {
	for {
		if v < compactU16ContinuationBit {
			return append(buf, byte(v))
		}
		buf = append(buf, byte(v&(compactU16ContinuationBit-1))|compactU16ContinuationBit)
		v >>= 7
	}
}

// compileMessage serializes a legacy transaction message with the fee payer
// first, remaining signers next, then writable and read-only non-signers.
func compileMessage(feePayer PublicKey, instructions []instruction, recentBlockhash PublicKey) []byte {
	// Merge account metas: an account referenced with different privileges
	// keeps the union of them.
	order := []PublicKey{feePayer}
	merged := map[PublicKey]*accountMeta{
		feePayer: {key: feePayer, signer: true, writable: true},
	}
	addMeta := func(meta accountMeta) {
		if existing, ok := merged[meta.key]; ok {
			existing.signer = existing.signer || meta.signer
			existing.writable = existing.writable || meta.writable
			return
		}
		copied := meta
		merged[meta.key] = &copied
		order = append(order, meta.key)
	}
	for _, ins := range instructions {
		for _, meta := range ins.accounts {
			addMeta(meta)
		}
		addMeta(accountMeta{key: ins.program})
	}

	// Group in message order. The fee payer is always first.
	var signerWritable, signerReadonly, writable, readonly []PublicKey
	for _, key := range order {
		meta := merged[key]
		switch {
		case key == feePayer:
			// placed explicitly below
		case meta.signer && meta.writable:
			signerWritable = append(signerWritable, key)
		case meta.signer:
			signerReadonly = append(signerReadonly, key)
		case meta.writable:
			writable = append(writable, key)
		default:
			readonly = append(readonly, key)
		}
	}

	keys := make([]PublicKey, 0, len(order))
	keys = append(keys, feePayer)
	keys = append(keys, signerWritable...)
	keys = append(keys, signerReadonly...)
	keys = append(keys, writable...)
	keys = append(keys, readonly...)

	index := make(map[PublicKey]byte, len(keys))
	for i, key := range keys {
		index[key] = byte(i)
	}

	numSigners := 1 + len(signerWritable) + len(signerReadonly)
	numReadonlySigned := len(signerReadonly)
	numReadonlyUnsigned := len(readonly)

	var buf bytes.Buffer
	buf.WriteByte(byte(numSigners))
	buf.WriteByte(byte(numReadonlySigned))
	buf.WriteByte(byte(numReadonlyUnsigned))

	out := appendCompactU16(nil, len(keys))
	buf.Write(out)
	for _, key := range keys {
		buf.Write(key[:])
	}
	buf.Write(recentBlockhash[:])

	buf.Write(appendCompactU16(nil, len(instructions)))
	for _, ins := range instructions {
		buf.WriteByte(index[ins.program])
		buf.Write(appendCompactU16(nil, len(ins.accounts)))
		for _, meta := range ins.accounts {
			buf.WriteByte(index[meta.key])
		}
		buf.Write(appendCompactU16(nil, len(ins.data)))
		buf.Write(ins.data)
	}

	return buf.Bytes()
}

// signTransaction wraps a compiled message with its signature section and
// returns the wire form plus the signature, which doubles as the
// transaction's identity.
func signTransaction(keypair *Keypair, message []byte) ([]byte, []byte) {
	signature := keypair.Sign(message)

	out := appendCompactU16(nil, 1)
	out = append(out, signature[:signatureLength]...)
	out = append(out, message...)
	return out, signature
}

// BuildTransfer builds and signs a complete token transfer transaction for
// the given recipient and amount. The returned bytes are the wire form posted
// to sendTransaction, and the returned string is the transaction signature
// that later identifies it.
func BuildTransfer(
	keypair *Keypair,
	mint PublicKey,
	decimals int,
	recipient string,
	amount decimal.Decimal,
	recentBlockhash PublicKey,
) ([]byte, string, error) {
	recipientKey, err := ParsePublicKey(recipient)
	if err != nil {
		return nil, "", err
	}
	native, err := tokenAmount(amount, decimals)
	if err != nil {
		return nil, "", err
	}

	instructions, err := buildTransferInstructions(keypair.PublicKey(), mint, recipientKey, native, decimals)
	if err != nil {
		return nil, "", err
	}

	message := compileMessage(keypair.PublicKey(), instructions, recentBlockhash)
	wire, signature := signTransaction(keypair, message)
	return wire, base58.Encode(signature), nil
}
