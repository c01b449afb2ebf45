package trader

import (
	"fmt"

	"bot-trading-go/internal/binance"
	"bot-trading-go/internal/models"
)

// MeanReversionStrategy buys dips below the moving average confirmed by an
// oversold RSI and above-average volume, and flags overbought extensions.
type MeanReversionStrategy struct{}

// meanReversionParams are the tunables with their defaults applied.
type meanReversionParams struct {
	rsiPeriod        int
	maPeriod         int
	rsiOversold      float64
	rsiOverbought    float64
	priceDeviation   float64 // percent distance from the MA that counts as stretched
	volumeMultiplier float64 // minimum volume vs its moving average
}

func resolveMeanReversionParams(params models.JSONMap) meanReversionParams {
	p := meanReversionParams{
		rsiPeriod:        14,
		maPeriod:         20,
		rsiOversold:      45,
		rsiOverbought:    70,
		priceDeviation:   0.5,
		volumeMultiplier: 0.8,
	}
	if v, ok := params["rsi_period"]; ok && v > 0 {
		p.rsiPeriod = int(v)
	}
	if v, ok := params["ma_period"]; ok && v > 0 {
		p.maPeriod = int(v)
	}
	if v, ok := params["rsi_oversold"]; ok {
		p.rsiOversold = v
	}
	if v, ok := params["rsi_overbought"]; ok {
		p.rsiOverbought = v
	}
	if v, ok := params["price_deviation"]; ok {
		p.priceDeviation = v
	}
	if v, ok := params["volume_multiplier"]; ok {
		p.volumeMultiplier = v
	}
	return p
}

func (s *MeanReversionStrategy) Name() string {
	return models.StrategyMeanReversion
}

// GenerateSignal evaluates the most recent candle against the MA, RSI and
// volume conditions.
func (s *MeanReversionStrategy) GenerateSignal(candles []binance.Candle, params models.JSONMap) Signal {
	p := resolveMeanReversionParams(params)

	if len(candles) < p.maPeriod {
		return Signal{Kind: SignalHold, Reason: "Insufficient data"}
	}

	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	latest := candles[len(candles)-1]
	rsi := latestRSI(closes, p.rsiPeriod)
	ma := latestSMA(closes, p.maPeriod)
	volumeMA := latestSMA(volumes, p.maPeriod)

	deviationPct := 0.0
	if ma > 0 {
		deviationPct = (latest.Close - ma) / ma * 100
	}
	volumeRatio := 0.0
	if volumeMA > 0 {
		volumeRatio = latest.Volume / volumeMA
	}

	indicators := map[string]float64{
		"rsi":                 rsi,
		"ma":                  ma,
		"price_deviation_pct": deviationPct,
		"volume_ratio":        volumeRatio,
	}

	if deviationPct < -p.priceDeviation &&
		rsi < p.rsiOversold &&
		volumeRatio > p.volumeMultiplier &&
		latest.Close < ma {
		return Signal{
			Kind:       SignalBuy,
			Reason:     fmt.Sprintf("Mean reversion buy: price %.2f%% below MA, RSI %.1f", -deviationPct, rsi),
			EntryPrice: latest.Close,
			StopLoss:   latest.Close * 0.97,
			TakeProfit: latest.Close * 1.05,
			Indicators: indicators,
		}
	}

	if deviationPct > p.priceDeviation &&
		rsi > p.rsiOverbought &&
		volumeRatio > p.volumeMultiplier {
		return Signal{
			Kind:       SignalSell,
			Reason:     fmt.Sprintf("Overbought: price %.2f%% above MA, RSI %.1f", deviationPct, rsi),
			Indicators: indicators,
		}
	}

	return Signal{Kind: SignalHold, Reason: "No clear signal", Indicators: indicators}
}

// ShouldExitPosition closes at the stop or the target. The stop is checked
// first; the order is the tie-break if both ever trigger.
func (s *MeanReversionStrategy) ShouldExitPosition(entryPrice, currentPrice, stopLoss, takeProfit float64) (bool, string) {
	if currentPrice <= stopLoss {
		return true, models.ExitReasonStopLoss
	}
	if currentPrice >= takeProfit {
		return true, models.ExitReasonTakeProfit
	}
	return false, ""
}
