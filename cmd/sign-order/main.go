package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smemoshui/seaport-core/pkg/crypto"
	"github.com/smemoshui/seaport-core/pkg/order"
)

func main() {
	// Step 1: Generate or load key
	var (
		signer *crypto.Signer
		err    error
	)
	if pk := os.Getenv("PRIVATE_KEY"); pk != "" {
		fmt.Println("Loading key from PRIVATE_KEY...")
		signer, err = crypto.FromPrivateKeyHex(pk)
	} else {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Address: %s\n", signer.Address().Hex())
	fmt.Printf("Private Key: %s (KEEP SECRET!)\n\n", signer.PrivateKeyHex())

	// Step 2: Build an order: sell 100 units of a token for 5 native,
	// open for one day
	token := common.HexToAddress("0x00000000000000000000000000000000000e7e01")
	now := time.Now().Unix()
	params := &order.Parameters{
		Offerer: signer.Address(),
		Offer: []order.OfferItem{{
			Class:       order.Fungible,
			Token:       token,
			Identifier:  uint256.NewInt(0),
			StartAmount: uint256.NewInt(100),
			EndAmount:   uint256.NewInt(100),
		}},
		Consideration: []order.ConsiderationItem{{
			Class:       order.Native,
			Identifier:  uint256.NewInt(0),
			StartAmount: uint256.NewInt(5),
			EndAmount:   uint256.NewInt(5),
			Recipient:   signer.Address(),
		}},
		Kind:      order.PartialOpen,
		StartTime: now,
		EndTime:   now + 86_400,
		Salt:      uint256.NewInt(uint64(now)),
		Counter:   0,
	}

	fmt.Println("Order Details:")
	fmt.Printf("  Offerer: %s\n", params.Offerer.Hex())
	fmt.Printf("  Offer: %s x %s\n", params.Offer[0].StartAmount.Dec(), token.Hex())
	fmt.Printf("  Consideration: %s native -> %s\n", params.Consideration[0].StartAmount.Dec(), params.Consideration[0].Recipient.Hex())
	fmt.Printf("  Window: [%d, %d)\n\n", params.StartTime, params.EndTime)

	// Step 3: Hash and sign with EIP-712
	typed := crypto.NewTypedSigner(crypto.DefaultDomain())
	orderHash, err := typed.OrderHash(params)
	if err != nil {
		fmt.Printf("Error hashing: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Order Hash: %s\n", orderHash.Hex())

	signature, err := typed.SignOrder(signer, params)
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Signature: 0x%x\n\n", signature)

	// Step 4: Verify signature
	fmt.Println("Verifying signature...")
	valid, err := typed.VerifyOrderSignature(params, signature)
	if err != nil {
		fmt.Printf("Error verifying: %v\n", err)
		os.Exit(1)
	}
	if !valid {
		fmt.Println("✗ Signature INVALID")
		os.Exit(1)
	}
	recovered, err := typed.RecoverOrderSigner(params, signature)
	if err != nil {
		fmt.Printf("Error recovering signer: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Signature VALID")
	fmt.Printf("  Signer: %s\n", recovered.Hex())
	fmt.Printf("  Matches offerer: %v\n\n", recovered == params.Offerer)

	// Step 5: Show the wallet typed-data payload
	typedJSON, err := typed.OrderToJSON(params)
	if err != nil {
		fmt.Printf("Error marshaling typed data: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("eth_signTypedData_v4 payload:")
	fmt.Println(typedJSON)
	fmt.Println()

	// Step 6: Show the API submission body
	signed := &order.Advanced{Order: order.Order{Parameters: *params, Signature: signature}}
	orderJSON, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling order: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("To settle this order:")
	fmt.Println("  POST http://localhost:8547/api/v1/settlements/match")
	fmt.Println("  Content-Type: application/json")
	fmt.Println("  Orders entry:")
	fmt.Println(string(orderJSON))
}
