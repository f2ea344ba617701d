package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"optrade/internal/model"
)

const defaultBinanceBaseURL = "https://api.binance.com"

var klineIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true, "1M": true,
}

// KlineService proxies candlestick queries to the upstream exchange. The
// payload is relayed as raw JSON; the client understands the upstream array
// format directly.
type KlineService struct {
	baseURL string
	client  *http.Client
}

func NewKlineService(baseURL string) *KlineService {
	if baseURL == "" {
		baseURL = defaultBinanceBaseURL
	}
	return &KlineService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *KlineService) Klines(ctx context.Context, symbol, interval string, limit int) (json.RawMessage, error) {
	if symbol == "" {
		return nil, model.Validationf("symbol is required")
	}
	if !klineIntervals[interval] {
		return nil, model.Validationf("unsupported interval")
	}
	if limit <= 0 || limit > 1000 {
		limit = 500
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch klines: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch klines: upstream status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("fetch klines: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("fetch klines: upstream returned invalid json")
	}
	return json.RawMessage(body), nil
}
