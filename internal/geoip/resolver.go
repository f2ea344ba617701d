package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const defaultBaseURL = "http://ip-api.com/json"

// Unknown is returned whenever a lookup fails or the address is not
// resolvable, so callers always get something displayable.
const Unknown = "unknown"

// Resolver maps client IPs to a human readable location. Lookups are cached
// forever; the upstream data changes slower than this process restarts.
type Resolver struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	cache map[string]string
}

func NewResolver(baseURL string) *Resolver {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Resolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		cache:   make(map[string]string),
	}
}

// Resolve returns "Country City" for the IP, or Unknown. Errors are absorbed:
// location is cosmetic and must never fail an admin listing.
func (r *Resolver) Resolve(ctx context.Context, ip string) string {
	if ip == "" || ip == "127.0.0.1" || ip == "::1" {
		return Unknown
	}
	r.mu.RLock()
	loc, ok := r.cache[ip]
	r.mu.RUnlock()
	if ok {
		return loc
	}

	loc = r.fetch(ctx, ip)
	r.mu.Lock()
	r.cache[ip] = loc
	r.mu.Unlock()
	return loc
}

func (r *Resolver) fetch(ctx context.Context, ip string) string {
	url := fmt.Sprintf("%s/%s?fields=status,country,city", r.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Unknown
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Unknown
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Unknown
	}

	var body struct {
		Status  string `json:"status"`
		Country string `json:"country"`
		City    string `json:"city"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Unknown
	}
	if body.Status != "success" || body.Country == "" {
		return Unknown
	}
	if body.City == "" {
		return body.Country
	}
	return body.Country + " " + body.City
}
