package aggregator

import (
	"context"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/curg-13/levkit/business/leverage/domain"
	"github.com/curg-13/levkit/internal/apperror"
	"github.com/curg-13/levkit/internal/asset"
	"github.com/curg-13/levkit/internal/logger"
	"github.com/curg-13/levkit/internal/txplan"
)

var testUser = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log := logger.New(io.Discard, logger.LevelError, "test", nil)
	c, err := New(Config{
		BaseURL:           srv.URL,
		APIKey:            "test-key",
		RequestsPerSecond: 1000,
		Burst:             100,
	}, log)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func quoteOf(in, out *asset.Asset, inRaw, outRaw *big.Int) domain.SwapQuote {
	return domain.SwapQuote{
		In:     asset.NewAmount(in, inRaw),
		Out:    asset.NewAmount(out, outRaw),
		Source: "1inch",
	}
}

func finalize(t *testing.T, b *txplan.Builder) *txplan.Plan {
	t.Helper()
	plan, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	return plan
}

func TestQuote_Success(t *testing.T) {
	var gotQuery map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("path = %q, want /quote", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		gotQuery = map[string]string{
			"src":    r.URL.Query().Get("src"),
			"dst":    r.URL.Query().Get("dst"),
			"amount": r.URL.Query().Get("amount"),
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"dstAmount":"512806000000000"}`)
	})

	amount := big.NewInt(1_025_612)
	quotes, err := c.Quote(context.Background(), asset.USDC, asset.WETH, amount)
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("len(quotes) = %d, want 1", len(quotes))
	}

	q := quotes[0]
	if q.Source != "1inch" {
		t.Errorf("Source = %q, want 1inch", q.Source)
	}
	if q.In.Raw().Cmp(amount) != 0 {
		t.Errorf("In = %s, want %s", q.In.Raw(), amount)
	}
	if want := big.NewInt(512_806_000_000_000); q.Out.Raw().Cmp(want) != 0 {
		t.Errorf("Out = %s, want %s", q.Out.Raw(), want)
	}
	if gotQuery["src"] != asset.AddrUSDCEthereum.Hex() {
		t.Errorf("src = %q", gotQuery["src"])
	}
	if gotQuery["dst"] != asset.AddrWETHEthereum.Hex() {
		t.Errorf("dst = %q", gotQuery["dst"])
	}
	if gotQuery["amount"] != "1025612" {
		t.Errorf("amount = %q", gotQuery["amount"])
	}
}

func TestQuote_Errors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantCode apperror.Code
	}{
		{
			name: "no route on 400",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, `{"error":"Bad Request","description":"insufficient liquidity","statusCode":400}`)
			},
			wantCode: apperror.CodeNoRoute,
		},
		{
			name: "api error on 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantCode: apperror.CodeAggregatorAPIError,
		},
		{
			name: "unparsable amount",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"dstAmount":"not-a-number"}`)
			},
			wantCode: apperror.CodeInvalidQuote,
		},
		{
			name: "zero output is no route",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"dstAmount":"0"}`)
			},
			wantCode: apperror.CodeNoRoute,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.Quote(context.Background(), asset.USDC, asset.WETH, big.NewInt(1_000_000))
			if !apperror.IsCode(err, tt.wantCode) {
				t.Errorf("Quote() error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestQuote_InvalidParameters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called")
	})

	if _, err := c.Quote(context.Background(), asset.USDC, asset.WETH, big.NewInt(0)); !apperror.IsCode(err, apperror.CodeInvalidParameter) {
		t.Errorf("zero amount: error = %v", err)
	}
	if _, err := c.Quote(context.Background(), asset.USDC, asset.USDC, big.NewInt(1)); !apperror.IsCode(err, apperror.CodeInvalidParameter) {
		t.Errorf("same asset: error = %v", err)
	}
}

func TestSwap_AppendsOp(t *testing.T) {
	router := "0x111111125421cA6dc452d289314280a0f8842A65"
	var gotSlippage, gotFrom string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/swap" {
			t.Errorf("path = %q, want /swap", r.URL.Path)
		}
		gotSlippage = r.URL.Query().Get("slippage")
		gotFrom = r.URL.Query().Get("from")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"dstAmount":"512806000000000","tx":{"to":"`+router+`","data":"0xdeadbeef","value":"0","gas":250000}}`)
	})

	b := txplan.NewBuilder(testUser)
	coin := b.NewCoin(asset.USDC)
	outRaw := big.NewInt(512_806_000_000_000)
	quote := quoteOf(asset.USDC, asset.WETH, big.NewInt(1_025_612), outRaw)

	got, err := c.Swap(context.Background(), b, quote, coin, 100)
	if err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	if !got.Valid() || !got.Asset().Equals(asset.WETH) {
		t.Fatalf("returned coin = %+v, want valid WETH coin", got)
	}
	if gotSlippage != "1" {
		t.Errorf("slippage = %q, want 1", gotSlippage)
	}
	if gotFrom != testUser.Hex() {
		t.Errorf("from = %q, want %s", gotFrom, testUser.Hex())
	}

	if b.Len() != 1 {
		t.Fatalf("ops = %d, want 1", b.Len())
	}
	plan := finalize(t, b)
	op := plan.Ops()[0]
	if op.Kind != txplan.KindSwap {
		t.Errorf("op kind = %s, want %s", op.Kind, txplan.KindSwap)
	}
	call, ok := op.Call.(SwapCall)
	if !ok {
		t.Fatalf("op payload = %T, want SwapCall", op.Call)
	}
	if call.Target != common.HexToAddress(router) {
		t.Errorf("target = %s, want %s", call.Target, router)
	}
	if len(call.Data) == 0 {
		t.Error("calldata is empty")
	}
	if want := asset.WithSlippageFloor(outRaw, 100); call.MinOutRaw.Cmp(want) != 0 {
		t.Errorf("min out = %s, want %s", call.MinOutRaw, want)
	}
}

func TestSwap_Rejections(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"dstAmount":"1"}`)
	})
	quote := quoteOf(asset.USDC, asset.WETH, big.NewInt(1_000_000), big.NewInt(1))

	t.Run("invalid coin", func(t *testing.T) {
		b := txplan.NewBuilder(testUser)
		_, err := c.Swap(context.Background(), b, quote, txplan.Coin{}, 100)
		if !apperror.IsCode(err, apperror.CodeInvalidState) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("coin asset mismatch", func(t *testing.T) {
		b := txplan.NewBuilder(testUser)
		coin := b.NewCoin(asset.WBTC)
		_, err := c.Swap(context.Background(), b, quote, coin, 100)
		if !apperror.IsCode(err, apperror.CodeInvalidParameter) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("slippage out of range", func(t *testing.T) {
		b := txplan.NewBuilder(testUser)
		coin := b.NewCoin(asset.USDC)
		_, err := c.Swap(context.Background(), b, quote, coin, 9_000)
		if !apperror.IsCode(err, apperror.CodeInvalidParameter) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("missing router tx", func(t *testing.T) {
		b := txplan.NewBuilder(testUser)
		coin := b.NewCoin(asset.USDC)
		_, err := c.Swap(context.Background(), b, quote, coin, 100)
		if !apperror.IsCode(err, apperror.CodeInvalidQuote) {
			t.Errorf("error = %v", err)
		}
	})
}
