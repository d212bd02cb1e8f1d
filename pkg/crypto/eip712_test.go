package crypto

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smemoshui/seaport-core/pkg/order"
)

func sampleParams(offerer common.Address) *order.Parameters {
	weth := common.HexToAddress("0x00000000000000000000000000000000000e7e01")
	return &order.Parameters{
		Offerer: offerer,
		Offer: []order.OfferItem{{
			Class:       order.Fungible,
			Token:       weth,
			Identifier:  uint256.NewInt(0),
			StartAmount: uint256.NewInt(100),
			EndAmount:   uint256.NewInt(100),
		}},
		Consideration: []order.ConsiderationItem{{
			Class:       order.Native,
			Identifier:  uint256.NewInt(0),
			StartAmount: uint256.NewInt(5),
			EndAmount:   uint256.NewInt(5),
			Recipient:   offerer,
		}},
		Kind:      order.PartialOpen,
		StartTime: 1000,
		EndTime:   2000,
		Salt:      uint256.NewInt(0xabc),
		Counter:   0,
	}
}

func TestOrderHashDeterministic(t *testing.T) {
	ts := NewTypedSigner(DefaultDomain())
	params := sampleParams(common.HexToAddress("0x00000000000000000000000000000000000a11ce"))

	h1, err := ts.OrderHash(params)
	if err != nil {
		t.Fatalf("order hash: %v", err)
	}
	h2, err := ts.OrderHash(params)
	if err != nil {
		t.Fatalf("order hash again: %v", err)
	}
	if h1 == (common.Hash{}) {
		t.Fatal("order hash is zero")
	}
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %s vs %s", h1.Hex(), h2.Hex())
	}
}

func TestOrderHashBindsEveryField(t *testing.T) {
	offerer := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	ts := NewTypedSigner(DefaultDomain())

	base, err := ts.OrderHash(sampleParams(offerer))
	if err != nil {
		t.Fatalf("base hash: %v", err)
	}

	mutations := []struct {
		name   string
		mutate func(p *order.Parameters)
	}{
		{"offerer", func(p *order.Parameters) { p.Offerer = common.HexToAddress("0xb0b") }},
		{"zone", func(p *order.Parameters) { p.Zone = common.HexToAddress("0x20e") }},
		{"offer amount", func(p *order.Parameters) { p.Offer[0].StartAmount = uint256.NewInt(101) }},
		{"consideration recipient", func(p *order.Parameters) { p.Consideration[0].Recipient = common.HexToAddress("0xb0b") }},
		{"kind", func(p *order.Parameters) { p.Kind = order.FullOpen }},
		{"start time", func(p *order.Parameters) { p.StartTime = 1001 }},
		{"end time", func(p *order.Parameters) { p.EndTime = 2001 }},
		{"conduit key", func(p *order.Parameters) { p.ConduitKey = order.ConduitKey{0x01} }},
		{"salt", func(p *order.Parameters) { p.Salt = uint256.NewInt(0xdef) }},
		{"counter", func(p *order.Parameters) { p.Counter = 1 }},
	}
	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			params := sampleParams(offerer)
			tt.mutate(params)
			got, err := ts.OrderHash(params)
			if err != nil {
				t.Fatalf("mutated hash: %v", err)
			}
			if got == base {
				t.Errorf("changing %s left the order hash unchanged", tt.name)
			}
		})
	}
}

func TestSignOrderRoundTrip(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ts := NewTypedSigner(DefaultDomain())
	params := sampleParams(signer.Address())

	sig, err := ts.SignOrder(signer, params)
	if err != nil {
		t.Fatalf("sign order: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}

	valid, err := ts.VerifyOrderSignature(params, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !valid {
		t.Error("signature did not verify for the offerer")
	}

	recovered, err := ts.RecoverOrderSigner(params, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered %s, want %s", recovered.Hex(), signer.Address().Hex())
	}
}

func TestSignatureBoundToParameters(t *testing.T) {
	signer, _ := GenerateKey()
	ts := NewTypedSigner(DefaultDomain())
	params := sampleParams(signer.Address())

	sig, err := ts.SignOrder(signer, params)
	if err != nil {
		t.Fatalf("sign order: %v", err)
	}

	// A parameter change after signing yields a different digest; recovery
	// then points at some other address, never the offerer.
	params.Offer[0].StartAmount = uint256.NewInt(999)
	valid, err := ts.VerifyOrderSignature(params, sig)
	if err == nil && valid {
		t.Error("signature verified over tampered parameters")
	}
}

func TestSignatureBoundToDomain(t *testing.T) {
	signer, _ := GenerateKey()
	params := sampleParams(signer.Address())

	home := NewTypedSigner(DefaultDomain())
	sig, err := home.SignOrder(signer, params)
	if err != nil {
		t.Fatalf("sign order: %v", err)
	}

	foreign := NewTypedSigner(EIP712Domain{
		Name:    "Seaport",
		Version: "1",
		ChainID: big.NewInt(9999),
	})
	valid, err := foreign.VerifyOrderSignature(params, sig)
	if err == nil && valid {
		t.Error("signature replayed across a different chain id")
	}

	// Hashing is domain-independent; only the signing digest differs.
	h1, _ := home.OrderHash(params)
	h2, _ := foreign.OrderHash(params)
	if h1 != h2 {
		t.Errorf("order hash differs across domains: %s vs %s", h1.Hex(), h2.Hex())
	}
	d1, _ := home.SignDigest(h1)
	d2, _ := foreign.SignDigest(h2)
	if d1 == d2 {
		t.Error("signing digest identical across domains")
	}
}

func TestOrderToJSON(t *testing.T) {
	signer, _ := GenerateKey()
	ts := NewTypedSigner(DefaultDomain())
	params := sampleParams(signer.Address())

	out, err := ts.OrderToJSON(params)
	if err != nil {
		t.Fatalf("order to json: %v", err)
	}

	var payload struct {
		PrimaryType string                 `json:"primaryType"`
		Domain      map[string]interface{} `json:"domain"`
		Message     map[string]interface{} `json:"message"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("payload is not valid json: %v", err)
	}
	if payload.PrimaryType != "OrderComponents" {
		t.Errorf("primaryType = %q, want OrderComponents", payload.PrimaryType)
	}
	if payload.Domain["chainId"] != "1337" {
		t.Errorf("domain chainId = %v, want 1337", payload.Domain["chainId"])
	}
	if payload.Message["counter"] != "0" {
		t.Errorf("message counter = %v, want 0", payload.Message["counter"])
	}
	if !strings.Contains(out, signer.Address().Hex()) {
		t.Error("payload does not mention the offerer address")
	}
}
