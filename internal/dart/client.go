package dart

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/1992jhlee/agent-vi/internal/resilience"
	"github.com/1992jhlee/agent-vi/internal/statement"
)

const defaultBaseURL = "https://opendart.fss.or.kr/api"

// Options configures the DART client.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// RequestsPerSec bounds calls to the open API (default 5).
	RequestsPerSec float64
	Retry          resilience.Policy
}

// Client talks to the DART open API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.Policy
	log     *zap.Logger
}

// NewClient builds a DART client. A missing API key is a configuration
// error and fails here, not on first call.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, eris.New("dart: api key not configured")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 5
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = resilience.DefaultPolicy()
	}

	return &Client{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		retry:   opts.Retry,
		log:     zap.L().With(zap.String("component", "dart.client")),
	}, nil
}

// FetchStatement retrieves the full structured statement for one
// filing. It tries the consolidated statement (CFS) first and fails
// over once to the separate statement (OFS). An empty result means the
// filing does not exist upstream; that is reported as a nil slice, not
// an error, and is never retried.
func (c *Client) FetchStatement(ctx context.Context, corpCode string, year int, report ReportCode) ([]statement.RawRow, error) {
	for _, fsDiv := range []string{"CFS", "OFS"} {
		rows, err := c.fetchStatementOnce(ctx, corpCode, year, report, fsDiv)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			c.log.Debug("statement fetched",
				zap.String("corp_code", corpCode),
				zap.Int("year", year),
				zap.String("report", string(report)),
				zap.String("fs_div", fsDiv),
				zap.Int("rows", len(rows)),
			)
			return rows, nil
		}
		if fsDiv == "CFS" {
			c.log.Debug("no consolidated statement, trying separate",
				zap.String("corp_code", corpCode),
				zap.Int("year", year),
			)
		}
	}
	return nil, nil
}

func (c *Client) fetchStatementOnce(ctx context.Context, corpCode string, year int, report ReportCode, fsDiv string) ([]statement.RawRow, error) {
	q := url.Values{
		"crtfc_key":  {c.apiKey},
		"corp_code":  {corpCode},
		"bsns_year":  {strconv.Itoa(year)},
		"reprt_code": {string(report)},
		"fs_div":     {fsDiv},
	}

	var resp statementResponse
	if err := c.getJSON(ctx, "/fnlttSinglAcntAll.json", q, &resp); err != nil {
		return nil, eris.Wrapf(err, "dart: fetch statement %s %d %s", corpCode, year, report)
	}

	switch resp.Status {
	case statusOK:
	case statusNoData:
		return nil, nil
	default:
		return nil, eris.Errorf("dart: statement query failed: %s (%s)", resp.Message, resp.Status)
	}

	rows := make([]statement.RawRow, 0, len(resp.List))
	for _, r := range resp.List {
		rows = append(rows, statement.RawRow{
			AccountID:   r.AccountID,
			AccountName: r.AccountNm,
			Division:    statement.Division(r.SjDiv),
			Amount:      r.ThstrmAmount,
			Source:      fsDiv,
		})
	}
	return rows, nil
}

// FetchList searches the disclosure list for a company within a date
// window (YYYYMMDD bounds). kind filters by disclosure type ("A" for
// periodic reports); empty means all kinds.
func (c *Client) FetchList(ctx context.Context, corpCode, begin, end, kind string) ([]Disclosure, error) {
	q := url.Values{
		"crtfc_key":     {c.apiKey},
		"corp_code":     {corpCode},
		"bgn_de":        {begin},
		"end_de":        {end},
		"last_reprt_at": {"Y"},
		"page_count":    {"100"},
	}
	if kind != "" {
		q.Set("pblntf_ty", kind)
	}

	var resp listResponse
	if err := c.getJSON(ctx, "/list.json", q, &resp); err != nil {
		return nil, eris.Wrapf(err, "dart: fetch list %s", corpCode)
	}

	switch resp.Status {
	case statusOK:
		return resp.List, nil
	case statusNoData:
		return nil, nil
	default:
		return nil, eris.Errorf("dart: list query failed: %s (%s)", resp.Message, resp.Status)
	}
}

// FetchDocument downloads the full filing document for an accession
// number. The API ships a zip archive of XML parts; the largest part is
// the main document and is returned verbatim.
func (c *Client) FetchDocument(ctx context.Context, receiptNo string) ([]byte, error) {
	q := url.Values{
		"crtfc_key": {c.apiKey},
		"rcept_no":  {receiptNo},
	}

	body, err := c.get(ctx, "/document.xml", q)
	if err != nil {
		return nil, eris.Wrapf(err, "dart: fetch document %s", receiptNo)
	}

	doc, err := extractMainDocument(body)
	if err != nil {
		return nil, eris.Wrapf(err, "dart: unpack document %s", receiptNo)
	}
	return doc, nil
}

// extractMainDocument picks the largest XML entry out of the document
// archive. Amendment filings carry multiple parts; the main report is
// always the biggest.
func extractMainDocument(archive []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		// Some older filings come back as bare XML.
		if bytes.HasPrefix(bytes.TrimSpace(archive), []byte("<")) {
			return archive, nil
		}
		return nil, eris.Wrap(err, "open archive")
	}

	var best *zip.File
	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		if best == nil || f.UncompressedSize64 > best.UncompressedSize64 {
			best = f
		}
	}
	if best == nil {
		return nil, eris.New("archive contains no xml document")
	}

	rc, err := best.Open()
	if err != nil {
		return nil, eris.Wrap(err, "open archive entry")
	}
	defer rc.Close() //nolint:errcheck

	return io.ReadAll(rc)
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	body, err := c.get(ctx, path, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("unexpected status %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}

		return io.ReadAll(resp.Body)
	})
}
