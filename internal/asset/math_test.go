package asset_test

import (
	"math/big"
	"testing"

	"github.com/curg-13/levkit/internal/asset"
	"github.com/shopspring/decimal"
)

func TestWithBuffer(t *testing.T) {
	tests := []struct {
		name   string
		raw    int64
		buffer string
		want   int64
	}{
		{"zero_buffer_is_identity", 1_000_000, "0", 1_000_000},
		{"half_percent", 1_000_000, "0.5", 1_005_000},
		{"two_percent", 1_000_000, "2", 1_020_000},
		{"floors_fraction", 999, "0.5", 1003},         // 999 * 1.005 = 1003.995
		{"zero_amount", 0, "5", 0},
		{"large_amount", 2_000_000_000, "2", 2_040_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buffer := decimal.RequireFromString(tt.buffer)
			got := asset.WithBuffer(big.NewInt(tt.raw), buffer)
			if got.Int64() != tt.want {
				t.Errorf("WithBuffer(%d, %s) = %d, want %d", tt.raw, tt.buffer, got.Int64(), tt.want)
			}
		})
	}
}

func TestWithBuffer_Monotonic(t *testing.T) {
	// For any amount >= 0 and buffer >= 0 the result never shrinks.
	amounts := []int64{0, 1, 7, 999, 1_000_000, 123_456_789_012}
	buffers := []string{"0", "0.1", "0.5", "1", "2", "10"}

	for _, a := range amounts {
		for _, b := range buffers {
			raw := big.NewInt(a)
			got := asset.WithBuffer(raw, decimal.RequireFromString(b))
			if got.Cmp(raw) < 0 {
				t.Errorf("WithBuffer(%d, %s) = %s shrank the amount", a, b, got)
			}
		}
	}
}

func TestWithBufferCeil_RoundsUp(t *testing.T) {
	// 999 * 1.005 = 1003.995 -> 1004
	got := asset.WithBufferCeil(big.NewInt(999), decimal.RequireFromString("0.5"))
	if got.Int64() != 1004 {
		t.Errorf("WithBufferCeil(999, 0.5) = %d, want 1004", got.Int64())
	}
}

func TestWithSlippageFloor(t *testing.T) {
	tests := []struct {
		name string
		raw  int64
		bps  int64
		want int64
	}{
		{"one_percent", 1_000_000, 100, 990_000},
		{"zero_slippage", 1_000_000, 0, 1_000_000},
		{"floors_fraction", 999, 100, 989}, // 999 * 0.99 = 989.01
		{"full_slippage", 1_000_000, 10_000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := asset.WithSlippageFloor(big.NewInt(tt.raw), tt.bps)
			if got.Int64() != tt.want {
				t.Errorf("WithSlippageFloor(%d, %d) = %d, want %d", tt.raw, tt.bps, got.Int64(), tt.want)
			}
		})
	}
}

func TestWithSlippageFloor_NeverExceedsInput(t *testing.T) {
	for _, bps := range []int64{0, 1, 50, 100, 500, 10_000} {
		raw := big.NewInt(123_456_789)
		got := asset.WithSlippageFloor(raw, bps)
		if got.Cmp(raw) > 0 {
			t.Errorf("WithSlippageFloor(%s, %d) = %s exceeds input", raw, bps, got)
		}
	}
}

func TestToRaw(t *testing.T) {
	tests := []struct {
		name     string
		human    string
		decimals uint8
		want     string
	}{
		{"one_usdc", "1", 6, "1000000"},
		{"fraction_truncated", "1.0000009", 6, "1000000"},
		{"eth_18_decimals", "1.5", 18, "1500000000000000000"},
		{"zero", "0", 6, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := asset.ToRaw(decimal.RequireFromString(tt.human), tt.decimals)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("ToRaw(%s, %d) = %s, want %s", tt.human, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestToRaw_RejectsNegative(t *testing.T) {
	_, err := asset.ToRaw(decimal.RequireFromString("-1"), 6)
	if err == nil {
		t.Error("expected error for negative input")
	}
}

func TestToRawCeil(t *testing.T) {
	got, err := asset.ToRawCeil(decimal.RequireFromString("1.0000001"), 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Int64() != 1_000_001 {
		t.Errorf("ToRawCeil = %d, want 1000001", got.Int64())
	}
}

func TestToHuman_RoundTrip(t *testing.T) {
	raw := big.NewInt(2_040_000)
	human := asset.ToHuman(raw, 6)
	want := decimal.RequireFromString("2.04")
	if !human.Equal(want) {
		t.Errorf("ToHuman(2040000, 6) = %s, want %s", human, want)
	}

	back, err := asset.ToRaw(human, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.Cmp(raw) != 0 {
		t.Errorf("round trip = %s, want %s", back, raw)
	}
}

func TestMulDivCeil(t *testing.T) {
	// ceil(10 * 1 / 3) = 4
	got := asset.MulDivCeil(big.NewInt(10), big.NewInt(1), big.NewInt(3))
	if got.Int64() != 4 {
		t.Errorf("MulDivCeil(10,1,3) = %d, want 4", got.Int64())
	}

	// Exact division stays exact.
	got = asset.MulDivCeil(big.NewInt(10), big.NewInt(3), big.NewInt(2))
	if got.Int64() != 15 {
		t.Errorf("MulDivCeil(10,3,2) = %d, want 15", got.Int64())
	}
}

func BenchmarkWithBuffer(b *testing.B) {
	raw := big.NewInt(1_000_000_000)
	buffer := decimal.RequireFromString("0.5")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		asset.WithBuffer(raw, buffer)
	}
}
