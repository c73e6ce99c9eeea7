package market

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/1992jhlee/agent-vi/internal/resilience"
)

const publicDataPath = "/1160100/service/GetStockSecuritiesInfoService/getStockPriceInfo"

// PublicDataOptions configures the public data portal client.
type PublicDataOptions struct {
	ServiceKey     string
	BaseURL        string
	Timeout        time.Duration
	RequestsPerSec float64
	CacheTTL       time.Duration
	Retry          resilience.Policy
}

// PublicDataClient queries the government securities-price API. It is
// the primary market-cap source; figures come straight from the issuer
// registry rather than exchange snapshots.
type PublicDataClient struct {
	http    *http.Client
	base    string
	key     string
	limiter *rate.Limiter
	cache   *gocache.Cache
	retry   resilience.Policy
	log     *zap.Logger
}

// NewPublicData builds a client. The service key is mandatory, the
// portal rejects unkeyed requests.
func NewPublicData(opts PublicDataOptions, transport http.RoundTripper) (*PublicDataClient, error) {
	if opts.ServiceKey == "" {
		return nil, eris.New("publicdata: service key not configured")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://apis.data.go.kr"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 5
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 12 * time.Hour
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = resilience.DefaultPolicy()
	}

	return &PublicDataClient{
		http:    &http.Client{Timeout: opts.Timeout, Transport: transport},
		base:    opts.BaseURL,
		key:     opts.ServiceKey,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		cache:   gocache.New(opts.CacheTTL, 10*time.Minute),
		retry:   opts.Retry,
		log:     zap.L().With(zap.String("component", "publicdata")),
	}, nil
}

type priceInfoResponse struct {
	Response struct {
		Header struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body struct {
			Items struct {
				Item []priceInfoItem `json:"item"`
			} `json:"items"`
		} `json:"body"`
	} `json:"response"`
}

type priceInfoItem struct {
	BaseDate   string `json:"basDt"`
	ShortCode  string `json:"srtnCd"`
	IssuerName string `json:"itmsNm"`
	Close      string `json:"clpr"`
	MarketCap  string `json:"mrktTotAmt"`
	Shares     string `json:"lstgStCnt"`
}

// GetMarketCap returns the ticker's snapshot on the given date, walking
// back to the nearest prior trading day. The portal matches tickers by
// prefix, so the exact short code is re-checked against each item.
func (c *PublicDataClient) GetMarketCap(ctx context.Context, ticker string, date time.Time) (Snapshot, error) {
	return walkBack(date, func(d time.Time) (Snapshot, bool, error) {
		item, err := c.fetchDay(ctx, ticker, d)
		if err != nil {
			return Snapshot{}, false, err
		}
		if item == nil {
			return Snapshot{}, false, nil
		}
		snap := Snapshot{
			Date:      d,
			Close:     krxNumber(item.Close),
			MarketCap: krxNumber(item.MarketCap),
			Shares:    krxNumber(item.Shares),
		}
		if snap.MarketCap == 0 {
			return Snapshot{}, false, nil
		}
		return snap, true, nil
	})
}

// ResolveIssuerName returns the registered issuer name for a ticker,
// probing recent trading days. Callers use it to verify a ticker maps
// to the company they expect before trusting its figures.
func (c *PublicDataClient) ResolveIssuerName(ctx context.Context, ticker string, date time.Time) (string, error) {
	name, err := walkBack(date, func(d time.Time) (string, bool, error) {
		item, err := c.fetchDay(ctx, ticker, d)
		if err != nil {
			return "", false, err
		}
		if item == nil {
			return "", false, nil
		}
		return item.IssuerName, true, nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "publicdata: resolve issuer %s", ticker)
	}
	return name, nil
}

// fetchDay returns the item for one ticker and day, nil when the day
// has no data.
func (c *PublicDataClient) fetchDay(ctx context.Context, ticker string, date time.Time) (*priceInfoItem, error) {
	key := ticker + ":" + date.Format("20060102")
	if v, found := c.cache.Get(key); found {
		item := v.(priceInfoItem)
		if item.ShortCode == "" {
			return nil, nil
		}
		return &item, nil
	}

	q := url.Values{
		"serviceKey": {c.key},
		"resultType": {"json"},
		"basDt":      {date.Format("20060102")},
		"likeSrtnCd": {ticker},
		"numOfRows":  {"10"},
	}

	body, err := resilience.DoVal(ctx, policyWithLog(c.retry, "publicdata", "getStockPriceInfo"),
		func(ctx context.Context) ([]byte, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet,
				c.base+publicDataPath+"?"+q.Encode(), nil)
			if err != nil {
				return nil, eris.Wrap(err, "publicdata: build request")
			}
			resp, err := c.http.Do(req)
			if err != nil {
				return nil, resilience.NewTransientError(eris.Wrap(err, "publicdata: request"), 0)
			}
			defer resp.Body.Close()

			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, resilience.NewTransientError(eris.Wrap(err, "publicdata: read body"), 0)
			}
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(
					eris.Errorf("publicdata: status %d", resp.StatusCode), resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				return nil, eris.Errorf("publicdata: status %d", resp.StatusCode)
			}
			return b, nil
		})
	if err != nil {
		return nil, err
	}

	var parsed priceInfoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "publicdata: decode response")
	}
	if rc := parsed.Response.Header.ResultCode; rc != "00" {
		return nil, eris.Errorf("publicdata: result %s: %s", rc, parsed.Response.Header.ResultMsg)
	}

	for _, item := range parsed.Response.Body.Items.Item {
		if item.ShortCode == ticker {
			c.cache.Set(key, item, gocache.DefaultExpiration)
			return &item, nil
		}
	}
	// Negative result cached too, holidays repeat across tickers.
	c.cache.Set(key, priceInfoItem{}, gocache.DefaultExpiration)
	return nil, nil
}

// policyWithLog attaches the standard retry logger to a policy.
func policyWithLog(p resilience.Policy, service, operation string) resilience.Policy {
	p.OnRetry = resilience.RetryLogger(service, operation)
	return p
}
