package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Identities are secp256k1 keypairs; the participant address is the Ethereum
// address of the public key. Requests that mutate state carry a signature
// over a canonical message, and the server recovers the address from it
// rather than trusting a claimed identity.

// messagePrefix is the personal-message prefix; signatures produced by
// standard wallet tooling over the same message verify unchanged.
const messagePrefix = "\x19Ethereum Signed Message:\n"

// Signer signs canonical messages with a secp256k1 private key. The service
// uses one as the authority identity for settlement attestations; clients
// use the same scheme for request signatures.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the address derived from the signer's private key,
// lower-case hex with 0x prefix.
func (s *Signer) Address() string {
	return strings.ToLower(s.address.Hex())
}

// Sign signs an arbitrary message and returns the hex-encoded 65-byte
// signature (r || s || v).
func (s *Signer) Sign(message []byte) (string, error) {
	sig, err := ethcrypto.Sign(textHash(message), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// SignAttestation signs the canonical settlement attestation for a market.
// The attestation binds the market, the verdict, and the resolution time
// under the authority key, and ships with the settlement report.
func (s *Signer) SignAttestation(marketID string, outcome bool, resolvedAt time.Time) (string, error) {
	return s.Sign(AttestationMessage(marketID, outcome, resolvedAt))
}

// AttestationMessage builds the canonical byte message a settlement
// attestation signs. Verifiers rebuild it field-for-field.
func AttestationMessage(marketID string, outcome bool, resolvedAt time.Time) []byte {
	verdict := "NO"
	if outcome {
		verdict = "YES"
	}
	return []byte(fmt.Sprintf("veridict:settlement:%s:%s:%d", marketID, verdict, resolvedAt.Unix()))
}

// RecoverAddress recovers the signing address from a message and its
// hex-encoded 65-byte signature. The returned address is lower-case hex
// with 0x prefix.
func RecoverAddress(message []byte, signatureHex string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("crypto/signer: invalid signature hex: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("crypto/signer: expected 65-byte signature, got %d bytes", len(sig))
	}

	// Normalise v back to {0,1} for recovery.
	recSig := make([]byte, 65)
	copy(recSig, sig)
	if recSig[64] >= 27 {
		recSig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(textHash(message), recSig)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return strings.ToLower(ethcrypto.PubkeyToAddress(*pub).Hex()), nil
}

// VerifySignature reports whether signatureHex over message was produced by
// the key behind address. Address comparison is case-insensitive.
func VerifySignature(address string, message []byte, signatureHex string) (bool, error) {
	recovered, err := RecoverAddress(message, signatureHex)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(recovered, address), nil
}

// textHash hashes a message under the personal-message prefix.
func textHash(message []byte) []byte {
	return ethcrypto.Keccak256([]byte(fmt.Sprintf("%s%d", messagePrefix, len(message))), message)
}
