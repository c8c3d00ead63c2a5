package processor

import (
	"encoding/json"
	"math"
	"sort"

	"bookflow/models"
)

// microprice weights each best price by the opposite side's volume and falls
// back to mid when both volumes are 0.
func microprice(bid, ask, bidVol, askVol float64) float64 {
	if bidVol+askVol == 0 {
		return (bid + ask) / 2
	}
	return (bid*askVol + ask*bidVol) / (bidVol + askVol)
}

// vwap is the size-weighted average price of levels, 0 when empty.
func vwap(levels []models.Level) float64 {
	var notional, size float64
	for _, l := range levels {
		notional += l.Price.Float() * l.Size
		size += l.Size
	}
	return ratio(notional, size)
}

type wallLevel struct {
	price    float64
	size     float64
	distance float64 // percent of mid
}

// wall finds the largest single level. On equal sizes the level nearest the
// best price wins.
func wall(levels []models.Level, mid float64) wallLevel {
	var w wallLevel
	found := false
	for _, l := range levels {
		if !found || l.Size > w.size {
			w.price, w.size = l.Price.Float(), l.Size
			found = true
		}
	}
	if found && mid != 0 {
		w.distance = math.Abs(w.price-mid) / mid * 100
	}
	return w
}

// slippage walks levels from the best price consuming notional quote units,
// filling the last level pro-rata, and returns |avgFill - best|. When the book
// cannot fill the notional the consumed part is used; nothing consumed is 0.
func slippage(levels []models.Level, notional float64) float64 {
	if len(levels) == 0 || notional <= 0 {
		return 0
	}
	best := levels[0].Price.Float()

	remaining := notional
	var cost, qty float64
	for _, l := range levels {
		p := l.Price.Float()
		if p <= 0 || l.Size <= 0 {
			continue
		}
		if p*l.Size >= remaining {
			cost += remaining
			qty += remaining / p
			break
		}
		cost += p * l.Size
		qty += l.Size
		remaining -= p * l.Size
	}
	if qty == 0 {
		return 0
	}
	return math.Abs(cost/qty - best)
}

// concentration is the share of a side's volume held by its three largest levels.
func concentration(levels []models.Level, total float64) float64 {
	if total == 0 || len(levels) == 0 {
		return 0
	}
	sizes := make([]float64, len(levels))
	for i, l := range levels {
		sizes[i] = l.Size
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sizes)))

	var top float64
	for i := 0; i < len(sizes) && i < 3; i++ {
		top += sizes[i]
	}
	return top / total
}

// depthJSON renders levels as [[price,size],...] in the given order.
func depthJSON(levels []models.Level) (string, error) {
	pairs := make([][2]float64, len(levels))
	for i, l := range levels {
		pairs[i] = [2]float64{l.Price.Float(), l.Size}
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
