package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of fixed-point units per whole price unit.
const PriceScale = 100_000_000

const priceExp = -8

// Price is a fixed-point price with eight decimal places. Using an integer
// keeps level keys exact regardless of how the venue formats its strings.
type Price int64

// ParsePrice converts a decimal string such as "27123.45" into a Price.
func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	return PriceFromDecimal(d), nil
}

// PriceFromDecimal rounds d to eight decimal places.
func PriceFromDecimal(d decimal.Decimal) Price {
	return Price(d.Shift(-priceExp).Round(0).IntPart())
}

// PriceFromFloat rounds f to eight decimal places.
func PriceFromFloat(f float64) Price {
	return PriceFromDecimal(decimal.NewFromFloat(f))
}

func (p Price) Decimal() decimal.Decimal {
	return decimal.New(int64(p), priceExp)
}

func (p Price) Float() float64 {
	return float64(p) / PriceScale
}

func (p Price) String() string {
	return p.Decimal().String()
}

// Side identifies a book side.
type Side string

const (
	Bid Side = "bid"
	Ask Side = "ask"
)

// Level is one price level of a book side.
type Level struct {
	Price Price
	Size  float64
}

// MessageType tags a native-venue book update.
type MessageType string

const (
	MessageSnapshot MessageType = "snapshot"
	MessageDelta    MessageType = "delta"
)

// BookMessage is one decoded update from a native-venue archive.
type BookMessage struct {
	Timestamp time.Time
	Type      MessageType
	Bids      []Level
	Asks      []Level
}

// Minute floors t to its calendar minute in UTC.
func Minute(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// Day floors t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
