package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	bls "github.com/cloudflare/circl/sign/bls"
	"golang.org/x/crypto/sha3"
)

// ErrBadRoundSignature marks a round signature that does not verify
// against the round message
var ErrBadRoundSignature = errors.New("beacon signature rejected")

// Randomness-beacon verification for probabilistic settlement.
// The beacon operator publishes one BLS signature per round over a
// round-derived message; anyone holding the beacon public key can verify it
// and derive unbiased draws from the signature bytes.

type scheme = bls.KeyG1SigG2

// BeaconPubKey is the beacon operator's BLS public key (G1)
type BeaconPubKey = bls.PublicKey[scheme]

// BeaconVerifier verifies beacon round signatures against a fixed public key
type BeaconVerifier struct {
	pk *BeaconPubKey
}

// NewBeaconVerifier builds a verifier from a marshaled BLS public key
func NewBeaconVerifier(pubKey []byte) (*BeaconVerifier, error) {
	pk := new(BeaconPubKey)
	if err := pk.UnmarshalBinary(pubKey); err != nil {
		return nil, fmt.Errorf("invalid beacon public key: %w", err)
	}
	return &BeaconVerifier{pk: pk}, nil
}

// RoundMessage derives the message a beacon round signs:
// sha256 of the 8-byte big-endian round number (unchained beacon).
func RoundMessage(round uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], round)
	sum := sha256.Sum256(buf[:])
	return sum[:]
}

// Verify checks the beacon signature for a round
func (v *BeaconVerifier) Verify(round uint64, sig []byte) error {
	if len(sig) == 0 {
		return fmt.Errorf("round %d: empty signature: %w", round, ErrBadRoundSignature)
	}
	if !bls.Verify(v.pk, RoundMessage(round), bls.Signature(sig)) {
		return fmt.Errorf("round %d: %w", round, ErrBadRoundSignature)
	}
	return nil
}

// BeaconDraw derives a 32-byte draw from a verified beacon signature and a
// caller-chosen context (request id plus a domain tag). Distinct contexts
// yield independent draws from the same round signature.
func BeaconDraw(sig, context []byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(sig)
	h.Write(context)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// BeaconSigner produces beacon round signatures. Used by tests and the
// devnet beacon; production deployments verify an external beacon instead.
type BeaconSigner struct {
	sk *bls.PrivateKey[scheme]
	pk *BeaconPubKey
}

// NewBeaconSignerFromSeed derives a deterministic beacon key from seed material
func NewBeaconSignerFromSeed(seed []byte) (*BeaconSigner, error) {
	sk, err := bls.KeyGen[scheme](seed, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("beacon keygen: %w", err)
	}
	return &BeaconSigner{sk: sk, pk: sk.PublicKey()}, nil
}

// PublicKey returns the marshaled verifier key for this signer
func (s *BeaconSigner) PublicKey() ([]byte, error) {
	return s.pk.MarshalBinary()
}

// SignRound signs the message for a beacon round
func (s *BeaconSigner) SignRound(round uint64) []byte {
	return bls.Sign(s.sk, RoundMessage(round))
}
