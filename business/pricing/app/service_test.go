package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curg-13/levkit/business/pricing/domain"
	"github.com/curg-13/levkit/internal/apperror"
	"github.com/curg-13/levkit/internal/asset"
	"github.com/curg-13/levkit/internal/logger"
)

type fakeFeed struct {
	latest     map[string]domain.PricePoint
	fetched    map[string]domain.PricePoint
	fetchErr   error
	fetchCalls int
}

func (f *fakeFeed) Latest(symbol string) (domain.PricePoint, bool) {
	p, ok := f.latest[symbol]
	return p, ok
}

func (f *fakeFeed) Fetch(_ context.Context, symbol string) (domain.PricePoint, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return domain.PricePoint{}, f.fetchErr
	}
	p, ok := f.fetched[symbol]
	if !ok {
		return domain.PricePoint{}, apperror.New(apperror.CodeFeedConnection)
	}
	return p, nil
}

func newService(feed *fakeFeed) *PriceService {
	log := logger.New(io.Discard, logger.LevelError, "test", nil)
	return NewPriceService(feed, ServiceConfig{StaleTimeout: 5 * time.Second}, log)
}

func freshPoint(symbol, price string) domain.PricePoint {
	return domain.NewPricePoint(symbol, decimal.RequireFromString(price), "feed-ws")
}

func stalePoint(symbol, price string) domain.PricePoint {
	p := freshPoint(symbol, price)
	p.ObservedAt = time.Now().Add(-time.Minute)
	return p
}

func TestPrice_FromStream(t *testing.T) {
	feed := &fakeFeed{latest: map[string]domain.PricePoint{
		"ETHUSDC": freshPoint("ETHUSDC", "2000"),
	}}
	s := newService(feed)

	got, err := s.Price(context.Background(), asset.WETH)
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}
	if !got.Equal(decimal.RequireFromString("2000")) {
		t.Errorf("Price() = %s, want 2000", got)
	}
	if feed.fetchCalls != 0 {
		t.Errorf("fetch calls = %d, want 0", feed.fetchCalls)
	}
}

func TestPrice_StablePinnedToOne(t *testing.T) {
	s := newService(&fakeFeed{})
	for _, a := range []*asset.Asset{asset.USDC, asset.DAI} {
		got, err := s.Price(context.Background(), a)
		if err != nil {
			t.Fatalf("Price(%s) error = %v", a.Symbol(), err)
		}
		if !got.Equal(decimal.NewFromInt(1)) {
			t.Errorf("Price(%s) = %s, want 1", a.Symbol(), got)
		}
	}
}

func TestPrice_StaleFallsBackToHTTP(t *testing.T) {
	feed := &fakeFeed{
		latest: map[string]domain.PricePoint{
			"ETHUSDC": stalePoint("ETHUSDC", "1990"),
		},
		fetched: map[string]domain.PricePoint{
			"ETHUSDC": freshPoint("ETHUSDC", "2010"),
		},
	}
	s := newService(feed)

	got, err := s.Price(context.Background(), asset.WETH)
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}
	if !got.Equal(decimal.RequireFromString("2010")) {
		t.Errorf("Price() = %s, want fetched 2010", got)
	}
	if feed.fetchCalls != 1 {
		t.Errorf("fetch calls = %d, want 1", feed.fetchCalls)
	}
}

func TestPrice_StaleAndFallbackDown(t *testing.T) {
	feed := &fakeFeed{
		latest: map[string]domain.PricePoint{
			"ETHUSDC": stalePoint("ETHUSDC", "1990"),
		},
		fetchErr: apperror.New(apperror.CodeFeedConnection),
	}
	s := newService(feed)

	_, err := s.Price(context.Background(), asset.WETH)
	if !apperror.IsCode(err, apperror.CodePriceStale) {
		t.Errorf("Price() error = %v, want %s", err, apperror.CodePriceStale)
	}
}

func TestPrice_UnknownAsset(t *testing.T) {
	s := newService(&fakeFeed{})
	unknown := asset.MustNewToken(asset.ChainIDEthereum, asset.AddrWSTETHEther, "XYZ", "Unknown", 18)

	_, err := s.Price(context.Background(), unknown)
	if !apperror.IsCode(err, apperror.CodePriceUnavailable) {
		t.Errorf("Price() error = %v, want %s", err, apperror.CodePriceUnavailable)
	}
}

func TestPrice_ZeroPriceRejected(t *testing.T) {
	feed := &fakeFeed{
		fetched: map[string]domain.PricePoint{
			"ETHUSDC": freshPoint("ETHUSDC", "0"),
		},
	}
	s := newService(feed)

	_, err := s.Price(context.Background(), asset.WETH)
	if !apperror.IsCode(err, apperror.CodePriceUnavailable) {
		t.Errorf("Price() error = %v, want %s", err, apperror.CodePriceUnavailable)
	}
}
