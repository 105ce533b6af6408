// Package identity verifies id tokens issued by external identity providers
// and turns them into the identity fields the auth service federates on.
package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

// ProviderMicrosoft is the provider name stored on federated accounts.
const ProviderMicrosoft = "microsoft"

var (
	ErrInvalidIssuer    = errors.New("token issuer is not allowed")
	ErrInvalidAudience  = errors.New("token audience does not match")
	ErrInvalidSignature = errors.New("token signature could not be verified")
	ErrMissingClaims    = errors.New("token is missing subject or email")
	ErrNotConfigured    = errors.New("microsoft login is not configured")
)

// ExternalIdentity is what a verified external token tells us about the
// caller.
type ExternalIdentity struct {
	Provider    string
	SubjectID   string
	Email       string
	DisplayName string
}

// KeyCache stores provider signing keys by key id.  Implementations must be
// safe for concurrent use.
type KeyCache interface {
	Get(kid string) (*rsa.PublicKey, bool)
	Put(kid string, key *rsa.PublicKey)
}

// MemoryKeyCache is a process-lifetime KeyCache.  Entries are never expired;
// a key id that is not present triggers a re-fetch of the key set instead.
type MemoryKeyCache struct {
	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

func NewMemoryKeyCache() *MemoryKeyCache {
	return &MemoryKeyCache{keys: make(map[string]*rsa.PublicKey)}
}

func (c *MemoryKeyCache) Get(kid string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.keys[kid]
	return k, ok
}

func (c *MemoryKeyCache) Put(kid string, key *rsa.PublicKey) {
	c.mu.Lock()
	c.keys[kid] = key
	c.mu.Unlock()
}

// microsoftClaims covers the v1 and v2 Entra id token claim sets.
type microsoftClaims struct {
	OID               string `json:"oid"`
	TID               string `json:"tid"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	jwt.RegisteredClaims
}

// MicrosoftVerifier validates Entra ID id tokens for a single tenant and
// client id.
type MicrosoftVerifier struct {
	tenantID string
	clientID string
	keysURL  string
	issuers  map[string]bool
	cache    KeyCache
	client   *http.Client

	fetchMu sync.Mutex
}

// NewMicrosoftVerifier builds a verifier for tokens issued by tenantID to
// clientID.  authority is the login host, normally
// https://login.microsoftonline.com.  A nil cache gets a MemoryKeyCache and
// a nil client gets one with a 5s timeout.
func NewMicrosoftVerifier(authority, tenantID, clientID string, cache KeyCache, client *http.Client) *MicrosoftVerifier {
	authority = strings.TrimRight(authority, "/")
	if cache == nil {
		cache = NewMemoryKeyCache()
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &MicrosoftVerifier{
		tenantID: tenantID,
		clientID: clientID,
		keysURL:  fmt.Sprintf("%s/%s/discovery/v2.0/keys", authority, tenantID),
		issuers: map[string]bool{
			fmt.Sprintf("%s/%s/v2.0", authority, tenantID):        true,
			fmt.Sprintf("https://sts.windows.net/%s/", tenantID): true,
		},
		cache:  cache,
		client: client,
	}
}

// Configured reports whether the verifier has a tenant and client id.
func (v *MicrosoftVerifier) Configured() bool {
	return v != nil && v.tenantID != "" && v.clientID != ""
}

// Verify checks the signature, issuer, audience and expiry of idToken and
// returns the federated identity.  The issuer is checked before any key is
// fetched, so tokens from other tenants never reach the network.
func (v *MicrosoftVerifier) Verify(ctx context.Context, idToken string) (*ExternalIdentity, error) {
	if !v.Configured() {
		return nil, ErrNotConfigured
	}
	var claims microsoftClaims
	_, err := jwt.ParseWithClaims(idToken, &claims, func(t *jwt.Token) (interface{}, error) {
		if !v.issuers[claims.Issuer] {
			return nil, ErrInvalidIssuer
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrInvalidSignature
		}
		return v.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
	)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidIssuer):
		return nil, ErrInvalidIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return nil, ErrInvalidAudience
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	id := &ExternalIdentity{
		Provider:    ProviderMicrosoft,
		SubjectID:   firstNonEmpty(claims.OID, claims.Subject),
		Email:       strings.ToLower(strings.TrimSpace(firstNonEmpty(claims.Email, claims.PreferredUsername))),
		DisplayName: strings.TrimSpace(claims.Name),
	}
	if id.SubjectID == "" || id.Email == "" {
		return nil, ErrMissingClaims
	}
	return id, nil
}

// key returns the cached key for kid, refreshing the key set once on a miss.
func (v *MicrosoftVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if k, ok := v.cache.Get(kid); ok {
		return k, nil
	}

	v.fetchMu.Lock()
	defer v.fetchMu.Unlock()
	if k, ok := v.cache.Get(kid); ok {
		return k, nil
	}
	keys, err := fetchKeySet(ctx, v.client, v.keysURL)
	if err != nil {
		return nil, err
	}
	for id, k := range keys {
		v.cache.Put(id, k)
	}
	if k, ok := keys[kid]; ok {
		return k, nil
	}
	return nil, ErrInvalidSignature
}

type jwkSet struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// fetchKeySet downloads a JWKS document and returns its RSA signing keys.
func fetchKeySet(ctx context.Context, client *http.Client, url string) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch signing keys: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch signing keys: status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode signing keys: %w", err)
	}
	out := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(k.N, "="))
		if err != nil {
			continue
		}
		e, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(k.E, "="))
		if err != nil || len(e) == 0 {
			continue
		}
		exp := 0
		for _, b := range e {
			exp = exp<<8 | int(b)
		}
		out[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: exp}
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
