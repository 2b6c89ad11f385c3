package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"candle-alerts/internal/model"

	"github.com/tidwall/gjson"
)

// MEXCFetcher fetches klines from the MEXC spot REST API
// (GET /api/v3/klines). Each row is
// [openTime, "open", "high", "low", "close", "volume", closeTime, ...].
type MEXCFetcher struct {
	baseURL  string
	interval string
	period   time.Duration
	client   *http.Client
	now      func() time.Time
}

// NewMEXCFetcher creates a fetcher for baseURL (e.g. "https://api.mexc.com").
func NewMEXCFetcher(baseURL, interval string) (*MEXCFetcher, error) {
	period, err := ParseInterval(interval)
	if err != nil {
		return nil, err
	}
	return &MEXCFetcher{
		baseURL:  strings.TrimRight(baseURL, "/"),
		interval: interval,
		period:   period,
		client:   &http.Client{Timeout: 15 * time.Second},
		now:      time.Now,
	}, nil
}

func (f *MEXCFetcher) Fetch(ctx context.Context, instrument string, limit int) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", instrument)
	q.Set("interval", f.interval)
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("mexc: create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mexc: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mexc: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mexc: status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	return f.parse(instrument, body)
}

func (f *MEXCFetcher) parse(instrument string, body []byte) ([]model.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("mexc: invalid json")
	}
	rows := gjson.ParseBytes(body)
	if !rows.IsArray() {
		return nil, fmt.Errorf("mexc: expected array, got %s", truncate(body, 200))
	}

	nowMs := f.now().UnixMilli()
	out := make([]model.Candle, 0, len(rows.Array()))
	var bad int
	rows.ForEach(func(_, row gjson.Result) bool {
		c := model.Candle{
			Instrument: instrument,
			OpenTime:   row.Get("0").Int(),
			Open:       row.Get("1").Float(),
			High:       row.Get("2").Float(),
			Low:        row.Get("3").Float(),
			Close:      row.Get("4").Float(),
			Volume:     row.Get("5").Float(),
		}
		closeTime := row.Get("6")
		if closeTime.Exists() {
			c.IsClosed = closeTime.Int() < nowMs
		} else {
			c.IsClosed = c.OpenTime+f.period.Milliseconds() <= nowMs
		}
		if !c.Valid() {
			bad++
			return true
		}
		out = append(out, c)
		return true
	})
	if bad > 0 && len(out) == 0 {
		return nil, fmt.Errorf("mexc: %d malformed rows for %s", bad, instrument)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	return out, nil
}
