package market

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/1992jhlee/agent-vi/internal/resilience"
)

const (
	krxJSONPath  = "/comm/bldAttendant/getJSONData.cmd"
	krxEntryPath = "/contents/MDC/MDI/mdiLoader/index.cmd?menuId=MDC0201"

	bldDailySnapshot = "dbms/MDC/STAT/standard/MDCSTAT01501"
	bldFundamentals  = "dbms/MDC/STAT/standard/MDCSTAT03501"
	bldOHLCV         = "dbms/MDC/STAT/standard/MDCSTAT01701"
	bldIssueFinder   = "dbms/comm/finder/finder_stkisu"
)

// KRXOptions configures the KRX data-portal client.
type KRXOptions struct {
	BaseURL        string
	Timeout        time.Duration
	RequestsPerSec float64
	CacheTTL       time.Duration
	Retry          resilience.Policy
}

// KRXClient queries data.krx.co.kr. The portal requires a session
// cookie obtained from its entry page; the client acquires it up front
// and refreshes it whenever the portal answers 403, inside the retry
// loop. Historical responses are cached, past trading days never
// change.
type KRXClient struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
	cache   *gocache.Cache
	retry   resilience.Policy
	log     *zap.Logger

	sessionMu    sync.Mutex
	sessionReady bool
}

// NewKRX builds a client with its own cookie-jar session. transport may
// be nil; tests inject one to fake the portal.
func NewKRX(opts KRXOptions, transport http.RoundTripper) (*KRXClient, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://data.krx.co.kr"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 2
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 12 * time.Hour
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = resilience.DefaultPolicy()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "krx: cookie jar")
	}

	c := &KRXClient{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Jar:       jar,
			Transport: transport,
		},
		base:    strings.TrimRight(opts.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		cache:   gocache.New(opts.CacheTTL, 10*time.Minute),
		retry:   opts.Retry,
		log:     zap.L().With(zap.String("component", "krx")),
	}
	return c, nil
}

// refreshSession loads the portal entry page, which sets the session
// cookie on the jar.
func (c *KRXClient) refreshSession(ctx context.Context) error {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+krxEntryPath, nil)
	if err != nil {
		return eris.Wrap(err, "krx: build entry request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "krx: entry page"), 0)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return resilience.NewTransientError(
			eris.Errorf("krx: entry page status %d", resp.StatusCode), resp.StatusCode)
	}
	c.sessionReady = true
	c.log.Debug("session refreshed")
	return nil
}

func (c *KRXClient) ensureSession(ctx context.Context) error {
	c.sessionMu.Lock()
	ready := c.sessionReady
	c.sessionMu.Unlock()
	if ready {
		return nil
	}
	return c.refreshSession(ctx)
}

// errForbidden marks a 403 so the retry callback can refresh the
// session before the next attempt.
var errForbidden = eris.New("krx: session rejected")

func (c *KRXClient) post(ctx context.Context, form url.Values) ([]byte, error) {
	policy := c.retry
	policy.ShouldRetry = func(err error) bool {
		return eris.Is(err, errForbidden) || resilience.IsTransient(err)
	}
	logRetry := resilience.RetryLogger("krx", "post")
	policy.OnRetry = func(attempt int, err error) {
		if eris.Is(err, errForbidden) {
			if rerr := c.refreshSession(ctx); rerr != nil {
				c.log.Warn("session refresh failed", zap.Error(rerr))
			}
		}
		logRetry(attempt, err)
	}

	return resilience.DoVal(ctx, policy, func(ctx context.Context) ([]byte, error) {
		if err := c.ensureSession(ctx); err != nil {
			return nil, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.base+krxJSONPath, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, eris.Wrap(err, "krx: build request")
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Referer", c.base+krxEntryPath)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "krx: request"), 0)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "krx: read body"), 0)
		}
		switch {
		case resp.StatusCode == http.StatusForbidden:
			return nil, errForbidden
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			return nil, resilience.NewTransientError(
				eris.Errorf("krx: status %d", resp.StatusCode), resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return nil, eris.Errorf("krx: status %d", resp.StatusCode)
		}
		return body, nil
	})
}

type krxSnapshotRow struct {
	Ticker    string `json:"ISU_SRT_CD"`
	Name      string `json:"ISU_ABBRV"`
	Close     string `json:"TDD_CLSPRC"`
	MarketCap string `json:"MKTCAP"`
	Shares    string `json:"LIST_SHRS"`
}

type krxSnapshotResponse struct {
	Rows []krxSnapshotRow `json:"OutBlock_1"`
}

// snapshotTable returns the full-market snapshot for one day, keyed by
// ticker. Empty on non-trading days. The whole day is cached at once
// since callers look up many tickers per day.
func (c *KRXClient) snapshotTable(ctx context.Context, date time.Time) (map[string]Snapshot, error) {
	key := "snap:" + date.Format("20060102")
	if v, found := c.cache.Get(key); found {
		return v.(map[string]Snapshot), nil
	}

	form := url.Values{
		"bld":         {bldDailySnapshot},
		"mktId":       {"ALL"},
		"trdDd":       {date.Format("20060102")},
		"share":       {"1"},
		"money":       {"1"},
		"csvxls_isNo": {"false"},
	}
	body, err := c.post(ctx, form)
	if err != nil {
		return nil, err
	}

	var parsed krxSnapshotResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "krx: decode snapshot")
	}

	table := make(map[string]Snapshot, len(parsed.Rows))
	for _, row := range parsed.Rows {
		table[row.Ticker] = Snapshot{
			Date:      date,
			Close:     krxNumber(row.Close),
			MarketCap: krxNumber(row.MarketCap),
			Shares:    krxNumber(row.Shares),
		}
	}
	c.cache.Set(key, table, gocache.DefaultExpiration)
	return table, nil
}

// GetMarketCap returns the ticker's snapshot on the given date, walking
// back to the nearest prior trading day when the market was closed.
func (c *KRXClient) GetMarketCap(ctx context.Context, ticker string, date time.Time) (Snapshot, error) {
	return walkBack(date, func(d time.Time) (Snapshot, bool, error) {
		table, err := c.snapshotTable(ctx, d)
		if err != nil {
			return Snapshot{}, false, err
		}
		snap, ok := table[ticker]
		if !ok || snap.MarketCap == 0 {
			return Snapshot{}, false, nil
		}
		return snap, true, nil
	})
}

type krxIssueResponse struct {
	Rows []struct {
		FullCode string `json:"full_code"`
		ShortCode string `json:"short_code"`
	} `json:"block1"`
}

// resolveISIN maps a 6-digit ticker to the portal's full issue code,
// required by per-issue endpoints.
func (c *KRXClient) resolveISIN(ctx context.Context, ticker string) (string, error) {
	key := "isin:" + ticker
	if v, found := c.cache.Get(key); found {
		return v.(string), nil
	}

	form := url.Values{
		"bld":        {bldIssueFinder},
		"mktsel":     {"ALL"},
		"searchText": {ticker},
	}
	body, err := c.post(ctx, form)
	if err != nil {
		return "", err
	}

	var parsed krxIssueResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", eris.Wrap(err, "krx: decode issue finder")
	}
	for _, row := range parsed.Rows {
		if row.ShortCode == ticker {
			c.cache.Set(key, row.FullCode, gocache.NoExpiration)
			return row.FullCode, nil
		}
	}
	return "", eris.Errorf("krx: unknown ticker %s", ticker)
}

type krxOHLCVResponse struct {
	Rows []struct {
		Date   string `json:"TRD_DD"`
		Open   string `json:"TDD_OPNPRC"`
		High   string `json:"TDD_HGPRC"`
		Low    string `json:"TDD_LWPRC"`
		Close  string `json:"TDD_CLSPRC"`
		Volume string `json:"ACC_TRDVOL"`
	} `json:"output"`
}

// GetOHLCV returns daily price bars for the ticker over a date range,
// oldest first.
func (c *KRXClient) GetOHLCV(ctx context.Context, ticker string, from, to time.Time) ([]OHLCV, error) {
	isin, err := c.resolveISIN(ctx, ticker)
	if err != nil {
		return nil, err
	}

	key := "ohlcv:" + ticker + ":" + from.Format("20060102") + ":" + to.Format("20060102")
	if v, found := c.cache.Get(key); found {
		return v.([]OHLCV), nil
	}

	form := url.Values{
		"bld":    {bldOHLCV},
		"isuCd":  {isin},
		"strtDd": {from.Format("20060102")},
		"endDd":  {to.Format("20060102")},
	}
	body, err := c.post(ctx, form)
	if err != nil {
		return nil, err
	}

	var parsed krxOHLCVResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "krx: decode ohlcv")
	}

	bars := make([]OHLCV, 0, len(parsed.Rows))
	for _, row := range parsed.Rows {
		d, err := time.Parse("2006/01/02", row.Date)
		if err != nil {
			continue
		}
		bars = append(bars, OHLCV{
			Date:   d,
			Open:   krxNumber(row.Open),
			High:   krxNumber(row.High),
			Low:    krxNumber(row.Low),
			Close:  krxNumber(row.Close),
			Volume: krxNumber(row.Volume),
		})
	}
	// Portal returns newest first.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	c.cache.Set(key, bars, gocache.DefaultExpiration)
	return bars, nil
}

type krxFundamentalResponse struct {
	Rows []struct {
		Ticker string `json:"ISU_SRT_CD"`
		EPS    string `json:"EPS"`
		PER    string `json:"PER"`
		BPS    string `json:"BPS"`
		PBR    string `json:"PBR"`
		DPS    string `json:"DPS"`
		Yield  string `json:"DVD_YLD"`
	} `json:"output"`
}

// GetFundamentals returns the exchange-computed valuation ratios for
// one ticker on one day, walking back over holidays.
func (c *KRXClient) GetFundamentals(ctx context.Context, ticker string, date time.Time) (Fundamental, error) {
	return walkBack(date, func(d time.Time) (Fundamental, bool, error) {
		key := "fund:" + d.Format("20060102")
		var parsed krxFundamentalResponse
		if v, found := c.cache.Get(key); found {
			parsed = v.(krxFundamentalResponse)
		} else {
			form := url.Values{
				"bld":   {bldFundamentals},
				"mktId": {"ALL"},
				"trdDd": {d.Format("20060102")},
			}
			body, err := c.post(ctx, form)
			if err != nil {
				return Fundamental{}, false, err
			}
			if err := json.Unmarshal(body, &parsed); err != nil {
				return Fundamental{}, false, eris.Wrap(err, "krx: decode fundamentals")
			}
			c.cache.Set(key, parsed, gocache.DefaultExpiration)
		}

		for _, row := range parsed.Rows {
			if row.Ticker != ticker {
				continue
			}
			return Fundamental{
				Date:          d,
				EPS:           krxNumber(row.EPS),
				PER:           krxFloat(row.PER),
				BPS:           krxNumber(row.BPS),
				PBR:           krxFloat(row.PBR),
				DPS:           krxNumber(row.DPS),
				DividendYield: krxFloat(row.Yield),
			}, true, nil
		}
		return Fundamental{}, false, nil
	})
}

// krxNumber parses the portal's comma-grouped integers. Dashes and
// empty strings mean zero.
func krxNumber(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func krxFloat(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
