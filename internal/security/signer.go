// Package security signs exported decision batches so a receiver can check
// they came from this process unmodified.
package security

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// Algorithm identifies the digest and curve used for signatures.
const Algorithm = "KECCAK256-SECP256K1"

var (
	ErrHashMismatch     = errors.New("payload hash mismatch")
	ErrBadSignature     = errors.New("signature verification failed")
	ErrUnknownPublicKey = errors.New("payload signed by a different key")
)

// Integrity is the tamper-evidence block attached to a payload.
type Integrity struct {
	SHA256    string `json:"sha256"`
	Keccak256 string `json:"keccak256"`
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
	Algorithm string `json:"algorithm"`
	SignedAt  string `json:"signedAt"`
}

// SignedPayload carries the exact JSON bytes that were signed.
type SignedPayload struct {
	Payload   json.RawMessage `json:"payload"`
	Integrity Integrity       `json:"integrity"`
}

// Signer holds one secp256k1 key for the lifetime of the process.
type Signer struct {
	key       *ecdsa.PrivateKey
	publicKey string
}

// NewSigner generates a fresh key.
func NewSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return newSigner(key), nil
}

// NewSignerFromHex loads a key from its hex encoding, with or without 0x.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	if len(hexKey) > 2 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	return newSigner(key), nil
}

func newSigner(key *ecdsa.PrivateKey) *Signer {
	s := &Signer{
		key:       key,
		publicKey: hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)),
	}
	logrus.Infof("Export signer initialized with public key: %s...", s.publicKey[:18])
	return s
}

// PublicKey returns the uncompressed public key, 0x-prefixed hex.
func (s *Signer) PublicKey() string {
	return s.publicKey
}

// Sign marshals payload and signs the Keccak-256 digest of the bytes.
func (s *Signer) Sign(payload interface{}) (SignedPayload, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return SignedPayload{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	digest := crypto.Keccak256Hash(raw)
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return SignedPayload{}, fmt.Errorf("failed to sign payload: %w", err)
	}

	sha := sha256.Sum256(raw)
	return SignedPayload{
		Payload: raw,
		Integrity: Integrity{
			SHA256:    hexutil.Encode(sha[:]),
			Keccak256: digest.Hex(),
			Signature: hexutil.Encode(sig),
			PublicKey: s.publicKey,
			Algorithm: Algorithm,
			SignedAt:  time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// Verify checks that signed was produced by this signer and that the payload
// bytes are unchanged.
func (s *Signer) Verify(signed SignedPayload) error {
	if signed.Integrity.PublicKey != s.publicKey {
		return ErrUnknownPublicKey
	}
	return Verify(signed)
}

// Verify checks the hashes and the signature against the embedded public key.
func Verify(signed SignedPayload) error {
	raw := []byte(signed.Payload)

	sha := sha256.Sum256(raw)
	if hexutil.Encode(sha[:]) != signed.Integrity.SHA256 {
		return fmt.Errorf("sha256: %w", ErrHashMismatch)
	}

	digest := crypto.Keccak256Hash(raw)
	if digest.Hex() != signed.Integrity.Keccak256 {
		return fmt.Errorf("keccak256: %w", ErrHashMismatch)
	}

	sig, err := hexutil.Decode(signed.Integrity.Signature)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("invalid signature length %d: %w", len(sig), ErrBadSignature)
	}

	pub, err := hexutil.Decode(signed.Integrity.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to decode public key: %w", err)
	}

	recovered, err := crypto.Ecrecover(digest.Bytes(), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !bytes.Equal(recovered, pub) {
		return ErrBadSignature
	}

	// drop the recovery id for the plain verification
	if !crypto.VerifySignature(pub, digest.Bytes(), sig[:64]) {
		return ErrBadSignature
	}
	return nil
}
