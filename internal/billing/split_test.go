package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name         string
		total        int64
		feeRate      float64
		wantFee      int64
		wantEarnings int64
	}{
		{"standard thirty percent", 1999, 0.30, 600, 1399},
		{"zero fee rate", 1999, 0.0, 0, 1999},
		{"full fee rate", 1999, 1.0, 1999, 0},
		{"zero total", 0, 0.30, 0, 0},
		{"half cent rounds up", 1000, 0.0205, 21, 979},   // 20.5 -> 21
		{"exact half boundary", 10, 0.25, 3, 7},          // 2.5 -> 3
		{"one cent", 1, 0.30, 0, 1},                      // 0.3 -> 0
		{"one cent full rate", 1, 1.0, 1, 0},
		{"large amount", 9_999_999, 0.15, 1_500_000, 8_499_999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, earnings := Split(tt.total, tt.feeRate)
			assert.Equal(t, tt.wantFee, fee)
			assert.Equal(t, tt.wantEarnings, earnings)
		})
	}
}

// TestSplitSumInvariant sweeps totals and fee rates and checks that the
// split always sums back to the total and never goes negative.
func TestSplitSumInvariant(t *testing.T) {
	rates := []float64{0.0, 0.01, 0.05, 0.125, 0.25, 0.3, 0.333, 0.5, 0.75, 0.99, 1.0}

	for total := int64(0); total <= 5000; total++ {
		for _, rate := range rates {
			fee, earnings := Split(total, rate)
			if fee+earnings != total {
				t.Fatalf("Split(%d, %v): fee %d + earnings %d != total", total, rate, fee, earnings)
			}
			if fee < 0 || earnings < 0 {
				t.Fatalf("Split(%d, %v): negative component fee=%d earnings=%d", total, rate, fee, earnings)
			}
		}
	}
}

func TestSplitOutOfRangeRates(t *testing.T) {
	fee, earnings := Split(1000, 1.5)
	assert.Equal(t, int64(1000), fee)
	assert.Equal(t, int64(0), earnings)

	fee, earnings = Split(1000, -0.5)
	assert.Equal(t, int64(0), fee)
	assert.Equal(t, int64(1000), earnings)
}
