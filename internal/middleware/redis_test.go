package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vkm-portal/internal/config"
	"github.com/iliyamo/vkm-portal/internal/model"
)

// deadRedis points at a port nothing listens on.
func deadRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestTokenBucket_DisabledIsPassthrough(t *testing.T) {
	rec := serve(httptest.NewRequest(http.MethodGet, "/x", nil),
		NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestTokenBucket_FailsOpenWhenRedisIsDown(t *testing.T) {
	rdb := deadRedis()
	defer rdb.Close()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}

	for i := 0; i < 3; i++ {
		rec := serve(httptest.NewRequest(http.MethodGet, "/x", nil), NewTokenBucket(cfg, rdb, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/vkms", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/vkms")
	c.Set(principalKey, model.Principal(&model.UserPrincipal{UserID: 3}))

	cases := map[string]string{
		"ip":         "rl:ip:10.0.0.5",
		"user":       "rl:user:user:3",
		"route":      "rl:route:GET /api/vkms",
		"user_route": "rl:user:user:3:route:GET /api/vkms",
		"":           "rl:ip:10.0.0.5:user:user:3:route:GET /api/vkms",
	}
	for strategy, want := range cases {
		got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		assert.Equal(t, want, got, strategy)
	}
}

func TestCacheKeyFrom(t *testing.T) {
	e := echo.New()
	ctxFor := func(target string) echo.Context {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/api/vkms/:id")
		return c
	}
	cfg := config.CacheConfig{Prefix: "cache"}

	a := cacheKeyFrom(cfg, ctxFor("/api/vkms/1"))
	b := cacheKeyFrom(cfg, ctxFor("/api/vkms/2"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, cacheKeyFrom(cfg, ctxFor("/api/vkms/1")))
	assert.Contains(t, a, "cache:")

	cfg.KeyStrategy = "route"
	assert.Equal(t, cacheKeyFrom(cfg, ctxFor("/api/vkms/1")), cacheKeyFrom(cfg, ctxFor("/api/vkms/2")))
}

func TestPayloadCodec(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"id":1}`))
	require.NoError(t, err)

	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
	assert.Equal(t, `{"id":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0, 0, 200, 0, 0, 1, 0})
	assert.False(t, ok)
}

func TestCaptureWriterLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, err := cw.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, "abcdef", rec.Body.String())
	assert.Equal(t, "abcd", cw.buf.String())
	assert.True(t, cw.truncated())
}

func TestRedisCache_MissWhenRedisIsDown(t *testing.T) {
	rdb := deadRedis()
	defer rdb.Close()
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute, Prefix: "cache"}

	rec := serve(httptest.NewRequest(http.MethodGet, "/x", nil), NewRedisCache(cfg, rdb, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}

func TestMetricsPassesThrough(t *testing.T) {
	rec := serve(httptest.NewRequest(http.MethodGet, "/x", nil), Metrics())
	assert.Equal(t, http.StatusOK, rec.Code)
}
