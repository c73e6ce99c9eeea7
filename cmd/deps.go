package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/1992jhlee/agent-vi/internal/dart"
	"github.com/1992jhlee/agent-vi/internal/market"
	"github.com/1992jhlee/agent-vi/internal/scrape"
	"github.com/1992jhlee/agent-vi/internal/store"
	"github.com/1992jhlee/agent-vi/internal/valuation"
)

func openStore(ctx context.Context) (*store.PostgresStore, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("store: database_url not configured")
	}
	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "cmd: open store")
	}
	return st, nil
}

func newDARTClient() (*dart.Client, error) {
	return dart.NewClient(dart.Options{
		APIKey:         cfg.DART.APIKey,
		BaseURL:        cfg.DART.BaseURL,
		Timeout:        cfg.DART.Timeout(),
		RequestsPerSec: cfg.DART.RequestsPerSec,
	})
}

func newKRXClient() (*market.KRXClient, error) {
	return market.NewKRX(market.KRXOptions{
		BaseURL:        cfg.KRX.BaseURL,
		Timeout:        cfg.KRX.Timeout(),
		RequestsPerSec: cfg.KRX.RequestsPerSec,
		CacheTTL:       time.Duration(cfg.KRX.CacheTTLHours) * time.Hour,
	}, nil)
}

// newCalculator wires the market-cap cascade. The public data portal is
// optional; without a service key the cascade starts at KRX.
func newCalculator() (*valuation.Calculator, error) {
	krx, err := newKRXClient()
	if err != nil {
		return nil, eris.Wrap(err, "cmd: krx client")
	}

	var primary valuation.MarketCapSource
	if cfg.PublicData.ServiceKey != "" {
		pub, err := market.NewPublicData(market.PublicDataOptions{
			ServiceKey:     cfg.PublicData.ServiceKey,
			BaseURL:        cfg.PublicData.BaseURL,
			Timeout:        cfg.PublicData.Timeout(),
			RequestsPerSec: cfg.PublicData.RequestsPerSec,
			CacheTTL:       time.Duration(cfg.PublicData.CacheTTLHours) * time.Hour,
		}, nil)
		if err != nil {
			return nil, eris.Wrap(err, "cmd: public data client")
		}
		primary = pub
	}

	return valuation.NewCalculator(primary, krx), nil
}

func newScraper(client *dart.Client) *scrape.Scraper {
	return scrape.NewScraper(client)
}
