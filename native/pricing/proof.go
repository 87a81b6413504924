package pricing

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ProofDomainV1 defines the domain separator used when signing price proofs.
const ProofDomainV1 = "COLLAR_PRICE_V1"

var (
	ErrProofSignerUnknown    = errors.New("pricing: price proof signer unknown")
	ErrProofSignatureInvalid = errors.New("pricing: price proof signature invalid")
	ErrProofStale            = errors.New("pricing: price proof outside freshness window")
)

// Proof captures a signed oracle attestation submitted by an off-process
// price feeder.
type Proof struct {
	Domain    string
	Provider  string
	Price     *big.Int
	Timestamp time.Time
	Signature []byte
}

// NewProof constructs a proof from the raw submission payload.
func NewProof(domain, provider, price string, ts int64, signature []byte) (*Proof, error) {
	trimmedDomain := strings.TrimSpace(domain)
	if trimmedDomain == "" {
		return nil, fmt.Errorf("pricing: proof domain required")
	}
	trimmedProvider := strings.TrimSpace(provider)
	if trimmedProvider == "" {
		return nil, fmt.Errorf("pricing: proof provider required")
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(price), 10)
	if !ok {
		return nil, fmt.Errorf("pricing: invalid proof price %q", price)
	}
	if value.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if ts <= 0 {
		return nil, fmt.Errorf("pricing: proof timestamp required")
	}
	proof := &Proof{
		Domain:    trimmedDomain,
		Provider:  trimmedProvider,
		Price:     value,
		Timestamp: time.Unix(ts, 0).UTC(),
	}
	if len(signature) > 0 {
		proof.Signature = append([]byte(nil), signature...)
	}
	return proof, nil
}

// CanonicalMessage renders the canonical message used for signature
// verification.
func (p *Proof) CanonicalMessage() (string, error) {
	if p == nil {
		return "", fmt.Errorf("pricing: proof not initialised")
	}
	domain := strings.ToUpper(strings.TrimSpace(p.Domain))
	if domain == "" {
		return "", fmt.Errorf("pricing: proof domain required")
	}
	provider := strings.ToLower(strings.TrimSpace(p.Provider))
	if provider == "" {
		return "", fmt.Errorf("pricing: proof provider required")
	}
	if p.Price == nil || p.Price.Sign() <= 0 {
		return "", ErrInvalidPrice
	}
	if p.Timestamp.IsZero() {
		return "", fmt.Errorf("pricing: proof timestamp required")
	}
	builder := strings.Builder{}
	builder.WriteString(domain)
	builder.WriteString("|provider=")
	builder.WriteString(provider)
	builder.WriteString("|price=")
	builder.WriteString(p.Price.String())
	builder.WriteString("|ts=")
	builder.WriteString(fmt.Sprintf("%d", p.Timestamp.UTC().Unix()))
	return builder.String(), nil
}

// Hash computes the keccak256 digest of the canonical message.
func (p *Proof) Hash() ([]byte, error) {
	message, err := p.CanonicalMessage()
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256([]byte(message)), nil
}

// ID returns the hexadecimal representation of the canonical message digest.
func (p *Proof) ID() (string, error) {
	hash, err := p.Hash()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(hash), nil
}

// ProofVerifier validates attested price submissions against a registry of
// authorised signer addresses and a freshness window.
type ProofVerifier struct {
	signers         map[string][20]byte
	maxAge          time.Duration
	futureTolerance time.Duration
	nowFn           func() time.Time
}

// NewProofVerifier constructs a verifier with the supplied freshness window.
func NewProofVerifier(maxAge time.Duration) *ProofVerifier {
	return &ProofVerifier{
		signers:         make(map[string][20]byte),
		maxAge:          maxAge,
		futureTolerance: time.Minute,
		nowFn:           time.Now,
	}
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (v *ProofVerifier) SetNowFunc(now func() time.Time) {
	if v == nil {
		return
	}
	if now == nil {
		v.nowFn = time.Now
		return
	}
	v.nowFn = now
}

// RegisterSigner authorises an attestation signer for the named provider.
func (v *ProofVerifier) RegisterSigner(provider string, addr [20]byte) {
	if v == nil {
		return
	}
	normalized := strings.ToLower(strings.TrimSpace(provider))
	if normalized == "" {
		return
	}
	v.signers[normalized] = addr
}

// Verify checks the proof signature against the registered signer for its
// provider and enforces the freshness window.
func (v *ProofVerifier) Verify(proof *Proof) error {
	if v == nil || proof == nil {
		return ErrProofSignatureInvalid
	}
	provider := strings.ToLower(strings.TrimSpace(proof.Provider))
	signer, ok := v.signers[provider]
	if !ok {
		return ErrProofSignerUnknown
	}
	if len(proof.Signature) != 65 {
		return ErrProofSignatureInvalid
	}
	hash, err := proof.Hash()
	if err != nil {
		return err
	}
	pubKey, err := ethcrypto.SigToPub(hash, proof.Signature)
	if err != nil {
		return ErrProofSignatureInvalid
	}
	recovered := ethcrypto.PubkeyToAddress(*pubKey)
	if recovered != ethcommon.BytesToAddress(signer[:]) {
		return ErrProofSignatureInvalid
	}
	now := v.nowFn()
	if v.futureTolerance > 0 && proof.Timestamp.After(now.Add(v.futureTolerance)) {
		return ErrProofStale
	}
	if v.maxAge > 0 && now.Sub(proof.Timestamp) > v.maxAge {
		return ErrProofStale
	}
	return nil
}
