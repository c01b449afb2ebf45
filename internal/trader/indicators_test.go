package trader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	assert.Equal(t, 4.0, latestSMA(values, 3)) // (3+4+5)/3
	assert.Equal(t, 3.0, latestSMA(values, 5))
	assert.Equal(t, 0.0, latestSMA(values, 6), "not enough data")
	assert.Equal(t, 0.0, latestSMA(values, 0))
}

func TestLatestRSI(t *testing.T) {
	t.Run("AllGains", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = 100 + float64(i)
		}
		assert.Equal(t, 100.0, latestRSI(closes, 14))
	})

	t.Run("AllLosses", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = 100 - float64(i)
		}
		assert.Equal(t, 0.0, latestRSI(closes, 14))
	})

	t.Run("FlatSeries", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = 100
		}
		// No losses at all counts as maximally strong.
		assert.Equal(t, 100.0, latestRSI(closes, 14))
	})

	t.Run("InsufficientData", func(t *testing.T) {
		assert.Equal(t, 50.0, latestRSI([]float64{100, 101}, 14))
	})

	t.Run("MixedSeries", func(t *testing.T) {
		closes := []float64{100, 102, 101, 103, 102, 104, 103, 105, 104, 106,
			105, 107, 106, 108, 107, 109}
		rsi := latestRSI(closes, 14)
		assert.Greater(t, rsi, 50.0, "uptrending series should be above midpoint")
		assert.Less(t, rsi, 100.0)
	})
}
