// Package market provides Korean market data: daily prices, market
// capitalization and valuation fundamentals, from the KRX data portal
// with the public data portal as an alternative source.
package market

import (
	"time"

	"github.com/rotisserie/eris"
)

// Snapshot is one ticker's state on one trading day. Amounts are in
// won, shares in units.
type Snapshot struct {
	Date      time.Time
	Close     int64
	Shares    int64
	MarketCap int64
}

// OHLCV is one daily price bar.
type OHLCV struct {
	Date   time.Time
	Open   int64
	High   int64
	Low    int64
	Close  int64
	Volume int64
}

// Fundamental is one day of exchange-computed valuation ratios.
type Fundamental struct {
	Date time.Time
	EPS  int64
	PER  float64
	BPS  int64
	PBR  float64
	DPS  int64
	DividendYield float64
}

// ErrNoTradingData means no trading day with data was found within the
// walk-back window. Holidays and suspensions produce it.
var ErrNoTradingData = eris.New("market: no trading data")

// maxWalkBack bounds the search for the nearest prior trading day.
const maxWalkBack = 5

// walkBack calls fn for the date and up to maxWalkBack prior calendar
// days, returning the first day that has data.
func walkBack[T any](date time.Time, fn func(time.Time) (T, bool, error)) (T, error) {
	var zero T
	for i := 0; i <= maxWalkBack; i++ {
		d := date.AddDate(0, 0, -i)
		v, ok, err := fn(d)
		if err != nil {
			return zero, err
		}
		if ok {
			return v, nil
		}
	}
	return zero, eris.Wrapf(ErrNoTradingData, "within %d days of %s", maxWalkBack, date.Format("2006-01-02"))
}
