package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	defaultOKXBaseURL = "https://www.okx.com"
	coinsCacheTTL     = 3 * time.Second
)

// Ticker is one instrument row from the upstream spot ticker feed, passed
// through with only the fields the client renders.
type Ticker struct {
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	Open24h   string `json:"open24h"`
	High24h   string `json:"high24h"`
	Low24h    string `json:"low24h"`
	Vol24h    string `json:"vol24h"`
	VolCcy24h string `json:"volCcy24h"`
}

type okxResponse struct {
	Code string   `json:"code"`
	Data []Ticker `json:"data"`
}

// CoinService proxies the upstream spot tickers with a short shared cache so
// a page full of clients hits the upstream at most every few seconds.
type CoinService struct {
	baseURL string
	client  *http.Client

	mu        sync.Mutex
	cached    []Ticker
	fetchedAt time.Time
}

func NewCoinService(baseURL string) *CoinService {
	if baseURL == "" {
		baseURL = defaultOKXBaseURL
	}
	return &CoinService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Coins returns the cached ticker list, refreshing it when stale. Concurrent
// callers during a refresh share one upstream request.
func (s *CoinService) Coins(ctx context.Context) ([]Ticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && time.Since(s.fetchedAt) < coinsCacheTTL {
		return s.cached, nil
	}
	tickers, err := s.fetch(ctx)
	if err != nil {
		// serve stale data over an error when we have any
		if s.cached != nil {
			return s.cached, nil
		}
		return nil, err
	}
	s.cached = tickers
	s.fetchedAt = time.Now()
	return tickers, nil
}

func (s *CoinService) fetch(ctx context.Context) ([]Ticker, error) {
	url := s.baseURL + "/api/v5/market/tickers?instType=SPOT"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tickers: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch tickers: upstream status %d", resp.StatusCode)
	}
	var body okxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("fetch tickers: %w", err)
	}
	if body.Code != "0" {
		return nil, fmt.Errorf("fetch tickers: upstream code %s", body.Code)
	}
	return body.Data, nil
}
