package utils // package utils provides helper functions for token creation, hashing and input checks

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and verifying signed tokens
	"github.com/google/uuid"

	"github.com/iliyamo/vkm-portal/internal/config"
	"github.com/iliyamo/vkm-portal/internal/model"
)

var (
	// ErrMissingToken is returned when the Authorization header is absent or
	// is not of the form "Bearer <token>".
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken covers bad signatures, wrong issuer or audience and
	// malformed claims.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for a well-formed token past its expiry.
	ErrExpiredToken = errors.New("token expired")
)

// AccessToken represents a signed session token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// SessionClaims is the payload of a session token.  Roles and scopes are a
// snapshot taken at issuance; they are not re-read from the user record
// until the next login.
type SessionClaims struct {
	UserID uint64   `json:"id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.  It holds no state
// beyond its configuration, so one instance is shared by every request.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenIssuer builds an issuer.  A TTL above one hour (or unset) is
// clamped to one hour.
func NewTokenIssuer(secret, issuer, audience string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 || ttl > config.MaxAccessTTL {
		ttl = config.MaxAccessTTL
	}
	return &TokenIssuer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Issue signs a session token for u carrying the read:vkm scope.
func (i *TokenIssuer) Issue(u *model.User) (AccessToken, error) {
	now := i.now().UTC()
	exp := now.Add(i.ttl)

	roles := make([]string, 0, len(u.Roles))
	for _, r := range model.NormalizeRoles(u.Roles) {
		roles = append(roles, string(r))
	}
	claims := SessionClaims{
		UserID: u.ID,
		Email:  u.Email,
		Roles:  roles,
		Scopes: []string{model.ScopeReadModules},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(u.ID, 10),
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// Verify checks signature, expiry, issuer and audience of raw and returns
// the principal it encodes.
func (i *TokenIssuer) Verify(raw string) (*model.UserPrincipal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMissingToken
	}
	var claims SessionClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !tok.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	// Tokens may never outlive the one hour cap, whatever the signer claimed.
	if claims.IssuedAt != nil && claims.ExpiresAt.Sub(claims.IssuedAt.Time) > config.MaxAccessTTL {
		return nil, ErrInvalidToken
	}

	p := &model.UserPrincipal{UserID: claims.UserID, Email: claims.Email, Scopes: claims.Scopes}
	for _, r := range claims.Roles {
		if role := model.Role(r); model.ValidRole(role) {
			p.Roles = append(p.Roles, role)
		}
	}
	return p, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}
	raw := strings.TrimSpace(header[len(prefix):])
	if raw == "" {
		return "", ErrMissingToken
	}
	return raw, nil
}
