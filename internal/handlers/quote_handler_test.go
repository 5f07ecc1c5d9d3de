package handlers

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stablemint-backend/internal/orchestrator"
	"stablemint-backend/internal/pricing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// stubPool serves a scripted protocol state for quote paths.
type stubPool struct {
	state    *pricing.ProtocolState
	stateErr error
}

func (p *stubPool) Address() common.Address { return common.Address{} }

func (p *stubPool) ProtocolState(ctx context.Context) (*pricing.ProtocolState, error) {
	return p.state, p.stateErr
}

func (p *stubPool) DollarInCollateral(ctx context.Context, index uint64, dollarAmount *big.Int) (*big.Int, error) {
	return new(big.Int).Set(dollarAmount), nil
}

func (p *stubPool) RedeemCollateralBalance(ctx context.Context, account common.Address, index uint64) (*big.Int, error) {
	return new(big.Int), nil
}

func (p *stubPool) MintCalldata(index uint64, dollarAmount, minOut, maxCollateralIn, maxGovernanceIn *big.Int, forceCollateralOnly bool) ([]byte, error) {
	return nil, nil
}

func (p *stubPool) RedeemCalldata(index uint64, dollarAmount, minGovernanceOut, minCollateralOut *big.Int) ([]byte, error) {
	return nil, nil
}

func (p *stubPool) CollectCalldata(index uint64) ([]byte, error) { return nil, nil }

func quoteTestEngine(pool *stubPool) *gin.Engine {
	orch := orchestrator.New(orchestrator.Config{
		Pool: pool,
		Assets: []*pricing.CollateralAsset{{
			Index:     0,
			Symbol:    "USDC",
			MintFee:   big.NewInt(3000),
			RedeemFee: big.NewInt(4500),
		}},
	})
	handler := NewQuoteHandler(orch)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/quote/mint", handler.QuoteMintHandler)
	engine.POST("/quote/redeem", handler.QuoteRedeemHandler)
	return engine
}

func postQuote(engine *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	return w
}

func healthyState() *pricing.ProtocolState {
	return &pricing.ProtocolState{
		CollateralRatio:      big.NewInt(1_000_000),
		GovernancePriceUsd:   big.NewInt(1_000_000),
		MintPriceThreshold:   big.NewInt(1_010_000),
		RedeemPriceThreshold: big.NewInt(990_000),
		TimeWeightedAvgPrice: big.NewInt(980_000),
	}
}

func TestQuoteMintHandlerSuccess(t *testing.T) {
	engine := quoteTestEngine(&stubPool{state: healthyState()})

	w := postQuote(engine, "/quote/mint", `{"collateralIndex":0,"dollarAmount":"1000000000000000000"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "quote")
}

func TestQuoteMintHandlerUnknownCollateralIsBadRequest(t *testing.T) {
	engine := quoteTestEngine(&stubPool{state: healthyState()})

	w := postQuote(engine, "/quote/mint", `{"collateralIndex":9,"dollarAmount":"1000000000000000000"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "a caller mistake is not a gateway failure")
	assert.Contains(t, w.Body.String(), "unknown collateral index")
}

func TestQuoteMintHandlerLedgerFailureIsBadGateway(t *testing.T) {
	engine := quoteTestEngine(&stubPool{stateErr: errors.New("connection refused")})

	w := postQuote(engine, "/quote/mint", `{"collateralIndex":0,"dollarAmount":"1000000000000000000"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestQuoteRedeemHandlerUnknownCollateralIsBadRequest(t *testing.T) {
	engine := quoteTestEngine(&stubPool{state: healthyState()})

	w := postQuote(engine, "/quote/redeem", `{"collateralIndex":9,"dollarAmount":"1000000000000000000"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuoteMintHandlerRejectsNonPositiveAmount(t *testing.T) {
	engine := quoteTestEngine(&stubPool{state: healthyState()})

	w := postQuote(engine, "/quote/mint", `{"collateralIndex":0,"dollarAmount":"0"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
