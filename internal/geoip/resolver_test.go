package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/203.0.113.9":
			w.Write([]byte(`{"status":"success","country":"Germany","city":"Berlin"}`))
		case "/203.0.113.10":
			w.Write([]byte(`{"status":"success","country":"Iceland","city":""}`))
		case "/203.0.113.11":
			w.Write([]byte(`{"status":"fail"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	r := NewResolver(srv.URL)
	ctx := context.Background()

	assert.Equal(t, "Germany Berlin", r.Resolve(ctx, "203.0.113.9"))
	assert.Equal(t, "Iceland", r.Resolve(ctx, "203.0.113.10"))
	assert.Equal(t, Unknown, r.Resolve(ctx, "203.0.113.11"))
	assert.Equal(t, Unknown, r.Resolve(ctx, "203.0.113.12"))
}

func TestResolveCaches(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"status":"success","country":"Japan","city":"Tokyo"}`))
	}))
	defer srv.Close()

	r := NewResolver(srv.URL)
	ctx := context.Background()

	require.Equal(t, "Japan Tokyo", r.Resolve(ctx, "198.51.100.1"))
	require.Equal(t, "Japan Tokyo", r.Resolve(ctx, "198.51.100.1"))
	assert.Equal(t, int64(1), hits.Load())
}

func TestResolveLocalAddresses(t *testing.T) {
	r := NewResolver("http://invalid.invalid")
	ctx := context.Background()

	assert.Equal(t, Unknown, r.Resolve(ctx, ""))
	assert.Equal(t, Unknown, r.Resolve(ctx, "127.0.0.1"))
	assert.Equal(t, Unknown, r.Resolve(ctx, "::1"))
}
