package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/smemoshui/seaport-core/pkg/order"
)

// EIP712Domain is the domain separator for typed order signing.
// It scopes signatures to one protocol instance so they cannot be replayed
// against another chain or deployment.
type EIP712Domain struct {
	Name              string         // protocol name
	Version           string         // protocol version
	ChainID           *big.Int       // chain id (1337 for local)
	VerifyingContract common.Address // settlement address (zero for off-chain)
}

// TypedSigner hashes and signs order parameters as EIP-712 typed data
type TypedSigner struct {
	domain EIP712Domain
}

// NewTypedSigner creates a typed-data signer with the given domain
func NewTypedSigner(domain EIP712Domain) *TypedSigner {
	return &TypedSigner{domain: domain}
}

// DefaultDomain returns the default signing domain
func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:              "Seaport",
		Version:           "1",
		ChainID:           big.NewInt(1337),
		VerifyingContract: common.Address{},
	}
}

// orderTypes is the EIP-712 type set for order parameters.
// OrderComponents covers every Parameters field including the counter, so
// bumping an offerer's counter invalidates all previously-signed orders.
var orderTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"OrderComponents": []apitypes.Type{
		{Name: "offerer", Type: "address"},
		{Name: "zone", Type: "address"},
		{Name: "offer", Type: "OfferItem[]"},
		{Name: "consideration", Type: "ConsiderationItem[]"},
		{Name: "orderType", Type: "uint8"},
		{Name: "startTime", Type: "uint256"},
		{Name: "endTime", Type: "uint256"},
		{Name: "conduitKey", Type: "bytes32"},
		{Name: "salt", Type: "uint256"},
		{Name: "counter", Type: "uint256"},
	},
	"OfferItem": []apitypes.Type{
		{Name: "itemType", Type: "uint8"},
		{Name: "token", Type: "address"},
		{Name: "identifier", Type: "uint256"},
		{Name: "startAmount", Type: "uint256"},
		{Name: "endAmount", Type: "uint256"},
	},
	"ConsiderationItem": []apitypes.Type{
		{Name: "itemType", Type: "uint8"},
		{Name: "token", Type: "address"},
		{Name: "identifier", Type: "uint256"},
		{Name: "startAmount", Type: "uint256"},
		{Name: "endAmount", Type: "uint256"},
		{Name: "recipient", Type: "address"},
	},
}

// OrderHash computes the canonical struct hash of order parameters.
// This is the hash fill status is keyed by: any parameter change, including
// the counter, yields a different hash.
func (t *TypedSigner) OrderHash(p *order.Parameters) (common.Hash, error) {
	typedData := t.typedData(p)
	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash order components: %w", err)
	}
	return common.BytesToHash(structHash), nil
}

// SignDigest wraps an order hash in the domain separator, producing the
// 32-byte digest wallets actually sign:
// keccak256("\x19\x01" || domainSeparator || orderHash)
func (t *TypedSigner) SignDigest(orderHash common.Hash) (common.Hash, error) {
	typedData := t.typedData(nil)
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	raw := make([]byte, 0, 2+32+32)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, orderHash.Bytes()...)
	return crypto.Keccak256Hash(raw), nil
}

// SignOrder signs order parameters and returns the 65-byte signature
func (t *TypedSigner) SignOrder(signer *Signer, p *order.Parameters) ([]byte, error) {
	orderHash, err := t.OrderHash(p)
	if err != nil {
		return nil, err
	}
	digest, err := t.SignDigest(orderHash)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(digest.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}
	return sig, nil
}

// VerifyOrderSignature reports whether the signature was produced by the
// order's offerer over these exact parameters
func (t *TypedSigner) VerifyOrderSignature(p *order.Parameters, signature []byte) (bool, error) {
	recovered, err := t.RecoverOrderSigner(p, signature)
	if err != nil {
		return false, err
	}
	return recovered == p.Offerer, nil
}

// RecoverOrderSigner recovers the address that signed the order parameters
func (t *TypedSigner) RecoverOrderSigner(p *order.Parameters, signature []byte) (common.Address, error) {
	orderHash, err := t.OrderHash(p)
	if err != nil {
		return common.Address{}, err
	}
	digest, err := t.SignDigest(orderHash)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(digest.Bytes(), signature)
}

// OrderToJSON renders the typed data in the eth_signTypedData_v4 layout
// consumed by browser wallets
func (t *TypedSigner) OrderToJSON(p *order.Parameters) (string, error) {
	typedData := t.typedData(p)
	payload := map[string]interface{}{
		"types":       typedData.Types,
		"primaryType": typedData.PrimaryType,
		"domain": map[string]interface{}{
			"name":              t.domain.Name,
			"version":           t.domain.Version,
			"chainId":           t.domain.ChainID.String(),
			"verifyingContract": t.domain.VerifyingContract.Hex(),
		},
		"message": typedData.Message,
	}
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal typed data: %w", err)
	}
	return string(out), nil
}

// typedData assembles the apitypes structure. A nil Parameters is allowed
// when only the domain is needed.
func (t *TypedSigner) typedData(p *order.Parameters) apitypes.TypedData {
	td := apitypes.TypedData{
		Types:       orderTypes,
		PrimaryType: "OrderComponents",
		Domain: apitypes.TypedDataDomain{
			Name:              t.domain.Name,
			Version:           t.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(t.domain.ChainID),
			VerifyingContract: t.domain.VerifyingContract.Hex(),
		},
	}
	if p == nil {
		return td
	}

	offer := make([]interface{}, len(p.Offer))
	for i, item := range p.Offer {
		offer[i] = map[string]interface{}{
			"itemType":    fmt.Sprintf("%d", item.Class),
			"token":       item.Token.Hex(),
			"identifier":  item.Identifier.Dec(),
			"startAmount": item.StartAmount.Dec(),
			"endAmount":   item.EndAmount.Dec(),
		}
	}
	consideration := make([]interface{}, len(p.Consideration))
	for i, item := range p.Consideration {
		consideration[i] = map[string]interface{}{
			"itemType":    fmt.Sprintf("%d", item.Class),
			"token":       item.Token.Hex(),
			"identifier":  item.Identifier.Dec(),
			"startAmount": item.StartAmount.Dec(),
			"endAmount":   item.EndAmount.Dec(),
			"recipient":   item.Recipient.Hex(),
		}
	}

	td.Message = apitypes.TypedDataMessage{
		"offerer":       p.Offerer.Hex(),
		"zone":          p.Zone.Hex(),
		"offer":         offer,
		"consideration": consideration,
		"orderType":     fmt.Sprintf("%d", p.Kind),
		"startTime":     strconv.FormatInt(p.StartTime, 10),
		"endTime":       strconv.FormatInt(p.EndTime, 10),
		"conduitKey":    p.ConduitKey.Hex(),
		"salt":          p.Salt.Dec(),
		"counter":       strconv.FormatUint(p.Counter, 10),
	}
	return td
}
