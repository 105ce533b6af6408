package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTenant = "tenant-1"
	testClient = "client-1"
)

type keyServer struct {
	srv     *httptest.Server
	mu      sync.Mutex
	key     *rsa.PrivateKey
	kid     string
	fetches atomic.Int32
}

func newKeyServer(t *testing.T) *keyServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ks := &keyServer{key: key, kid: "kid-1"}
	ks.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+testTenant+"/discovery/v2.0/keys" {
			http.NotFound(w, r)
			return
		}
		ks.fetches.Add(1)
		ks.mu.Lock()
		pub, kid := ks.key.PublicKey, ks.kid
		ks.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"use": "sig",
			"kid": kid,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}}})
	}))
	t.Cleanup(ks.srv.Close)
	return ks
}

func (ks *keyServer) verifier() *MicrosoftVerifier {
	return NewMicrosoftVerifier(ks.srv.URL, testTenant, testClient, nil, ks.srv.Client())
}

func (ks *keyServer) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	ks.mu.Lock()
	defer ks.mu.Unlock()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = ks.kid
	raw, err := tok.SignedString(ks.key)
	require.NoError(t, err)
	return raw
}

func (ks *keyServer) claims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":                ks.srv.URL + "/" + testTenant + "/v2.0",
		"aud":                testClient,
		"exp":                time.Now().Add(time.Hour).Unix(),
		"oid":                "object-1",
		"sub":                "pairwise-1",
		"preferred_username": "Student@School.NL",
		"name":               "Sam Student",
	}
}

func TestVerify_ValidToken(t *testing.T) {
	ks := newKeyServer(t)
	v := ks.verifier()

	id, err := v.Verify(context.Background(), ks.sign(t, ks.claims()))
	require.NoError(t, err)
	assert.Equal(t, ProviderMicrosoft, id.Provider)
	assert.Equal(t, "object-1", id.SubjectID)
	assert.Equal(t, "student@school.nl", id.Email)
	assert.Equal(t, "Sam Student", id.DisplayName)

	_, err = v.Verify(context.Background(), ks.sign(t, ks.claims()))
	require.NoError(t, err)
	assert.Equal(t, int32(1), ks.fetches.Load(), "keys are served from the cache")
}

func TestVerify_V1IssuerAccepted(t *testing.T) {
	ks := newKeyServer(t)
	c := ks.claims()
	c["iss"] = "https://sts.windows.net/" + testTenant + "/"
	_, err := ks.verifier().Verify(context.Background(), ks.sign(t, c))
	assert.NoError(t, err)
}

func TestVerify_ForeignTenantRejected(t *testing.T) {
	ks := newKeyServer(t)
	c := ks.claims()
	c["iss"] = ks.srv.URL + "/other-tenant/v2.0"

	_, err := ks.verifier().Verify(context.Background(), ks.sign(t, c))
	assert.ErrorIs(t, err, ErrInvalidIssuer)
	assert.Equal(t, int32(0), ks.fetches.Load())
}

func TestVerify_WrongAudience(t *testing.T) {
	ks := newKeyServer(t)
	c := ks.claims()
	c["aud"] = "someone-else"
	_, err := ks.verifier().Verify(context.Background(), ks.sign(t, c))
	assert.ErrorIs(t, err, ErrInvalidAudience)
}

func TestVerify_BadSignature(t *testing.T) {
	ks := newKeyServer(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, ks.claims())
	tok.Header["kid"] = ks.kid
	raw, err := tok.SignedString(other)
	require.NoError(t, err)

	_, err = ks.verifier().Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_UnknownKidRefetches(t *testing.T) {
	ks := newKeyServer(t)
	v := ks.verifier()
	_, err := v.Verify(context.Background(), ks.sign(t, ks.claims()))
	require.NoError(t, err)

	// Rotate the signing key.
	next, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ks.mu.Lock()
	ks.key, ks.kid = next, "kid-2"
	ks.mu.Unlock()

	_, err = v.Verify(context.Background(), ks.sign(t, ks.claims()))
	require.NoError(t, err)
	assert.Equal(t, int32(2), ks.fetches.Load())
}

func TestVerify_MissingClaims(t *testing.T) {
	ks := newKeyServer(t)
	c := ks.claims()
	delete(c, "preferred_username")
	_, err := ks.verifier().Verify(context.Background(), ks.sign(t, c))
	assert.ErrorIs(t, err, ErrMissingClaims)

	c = ks.claims()
	delete(c, "oid")
	c["email"] = "direct@school.nl"
	id, err := ks.verifier().Verify(context.Background(), ks.sign(t, c))
	require.NoError(t, err)
	assert.Equal(t, "pairwise-1", id.SubjectID)
	assert.Equal(t, "direct@school.nl", id.Email)
}

func TestVerify_NotConfigured(t *testing.T) {
	v := NewMicrosoftVerifier("https://login.microsoftonline.com", "", "", nil, nil)
	_, err := v.Verify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestMemoryKeyCache(t *testing.T) {
	c := NewMemoryKeyCache()
	_, ok := c.Get("a")
	assert.False(t, ok)
	k := &rsa.PublicKey{N: big.NewInt(5), E: 3}
	c.Put("a", k)
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Same(t, k, got)
}
