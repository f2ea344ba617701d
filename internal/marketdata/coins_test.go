package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"optrade/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tickerBody = `{"code":"0","data":[{"instId":"BTC-USDT","last":"65000.1","open24h":"64000","high24h":"66000","low24h":"63500","vol24h":"1200","volCcy24h":"78000000"}]}`

func TestCoinsFetchAndCache(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/v5/market/tickers", r.URL.Path)
		assert.Equal(t, "SPOT", r.URL.Query().Get("instType"))
		w.Write([]byte(tickerBody))
	}))
	defer srv.Close()

	svc := NewCoinService(srv.URL)
	ctx := context.Background()

	tickers, err := svc.Coins(ctx)
	require.NoError(t, err)
	require.Len(t, tickers, 1)
	assert.Equal(t, "BTC-USDT", tickers[0].InstID)
	assert.Equal(t, "65000.1", tickers[0].Last)

	_, err = svc.Coins(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hits.Load(), "second call within the ttl must hit the cache")
}

func TestCoinsServesStaleOnUpstreamFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(tickerBody))
	}))
	defer srv.Close()

	svc := NewCoinService(srv.URL)
	ctx := context.Background()

	_, err := svc.Coins(ctx)
	require.NoError(t, err)

	fail.Store(true)
	svc.fetchedAt = svc.fetchedAt.Add(-coinsCacheTTL)

	tickers, err := svc.Coins(ctx)
	require.NoError(t, err)
	assert.Len(t, tickers, 1)
}

func TestCoinsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"50011","data":[]}`))
	}))
	defer srv.Close()

	_, err := NewCoinService(srv.URL).Coins(context.Background())
	require.Error(t, err)
}

func TestKlinesProxiesRawPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "500", r.URL.Query().Get("limit"))
		w.Write([]byte(`[[1625097600000,"34000","34100","33900","34050","12.5"]]`))
	}))
	defer srv.Close()

	svc := NewKlineService(srv.URL)
	payload, err := svc.Klines(context.Background(), "BTCUSDT", "1m", 0)
	require.NoError(t, err)
	assert.JSONEq(t, `[[1625097600000,"34000","34100","33900","34050","12.5"]]`, string(payload))
}

func TestKlinesValidation(t *testing.T) {
	svc := NewKlineService("http://invalid.invalid")
	var ve *model.ValidationError

	_, err := svc.Klines(context.Background(), "", "1m", 10)
	require.ErrorAs(t, err, &ve)

	_, err = svc.Klines(context.Background(), "BTCUSDT", "7m", 10)
	require.ErrorAs(t, err, &ve)
}
