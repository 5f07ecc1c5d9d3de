package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"stablemint-backend/internal/contracts"
	"stablemint-backend/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
)

// slot-reader is an operator diagnostic: it dials the configured RPC
// endpoints, dumps the pool's pricing parameters, and optionally reads raw
// storage slots. Useful when the API and the chain appear to disagree.
//
//	slot-reader <pool-address> [slot ...]
func main() {
	primaryURL := getEnv("RPC_PRIMARY", "http://localhost:8545")
	fallbackURL := getEnv("RPC_FALLBACK", primaryURL)

	if len(os.Args) < 2 {
		log.Fatal("usage: slot-reader <pool-address> [slot ...]")
	}
	if !common.IsHexAddress(os.Args[1]) {
		log.Fatalf("not a valid address: %s", os.Args[1])
	}
	poolAddress := common.HexToAddress(os.Args[1])

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := ledger.Dial(ctx, primaryURL, fallbackURL, logger)
	if err != nil {
		log.Fatalf("failed to dial rpc endpoints: %v", err)
	}

	fmt.Printf("=== Pool %s ===\n\n", poolAddress.Hex())

	pool, err := contracts.NewPool(poolAddress, client)
	if err != nil {
		log.Fatalf("failed to bind pool contract: %v", err)
	}

	fmt.Println("📋 Protocol State:")
	state, err := pool.ProtocolState(ctx)
	if err != nil {
		log.Printf("  error reading protocol state: %v", err)
	} else {
		fmt.Printf("  Collateral Ratio:         %s\n", state.CollateralRatio)
		fmt.Printf("  Governance Price (USD):   %s\n", state.GovernancePriceUsd)
		fmt.Printf("  Mint Price Threshold:     %s\n", state.MintPriceThreshold)
		fmt.Printf("  Redeem Price Threshold:   %s\n", state.RedeemPriceThreshold)
		fmt.Printf("  Time-Weighted Avg Price:  %s\n", state.TimeWeightedAvgPrice)
	}

	fmt.Println("\n📦 Collaterals:")
	assets, err := pool.LoadCollaterals(ctx)
	if err != nil {
		log.Printf("  error loading collaterals: %v", err)
	} else {
		for _, asset := range assets {
			fmt.Printf("  [%d] %s\n", asset.Index, asset.Symbol)
			fmt.Printf("      Address:           %s\n", asset.Address.Hex())
			fmt.Printf("      Mint Fee:          %s\n", asset.MintFee)
			fmt.Printf("      Redeem Fee:        %s\n", asset.RedeemFee)
			fmt.Printf("      Decimal Shortfall: %d\n", asset.DecimalShortfall)
		}
	}

	if len(os.Args) > 2 {
		fmt.Println("\n🔍 Raw Storage:")
		for _, slotArg := range os.Args[2:] {
			slotBytes, err := hexutil.Decode(slotArg)
			if err != nil || len(slotBytes) > common.HashLength {
				log.Printf("  skipping invalid slot %q", slotArg)
				continue
			}
			slot := common.BytesToHash(slotBytes)
			value, err := client.StorageAt(ctx, poolAddress, slot)
			if err != nil {
				log.Printf("  error reading slot %s: %v", slot.Hex(), err)
				continue
			}
			fmt.Printf("  %s = %s\n", slot.Hex(), hexutil.Encode(value))
		}
	}

	if client.UsingFallback() {
		fmt.Println("\n⚠️  primary endpoint failed during this run, answers came from the fallback")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
