package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vkm-portal/internal/model"
)

func testIssuer() *TokenIssuer {
	return NewTokenIssuer("test-secret", "vkm-api", "vkm-users", 30*time.Minute)
}

func TestIssueAndVerify(t *testing.T) {
	iss := testIssuer()
	tok, err := iss.Issue(&model.User{ID: 7, Email: "a@b.nl", Roles: []model.Role{model.RoleStudent}})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), tok.Exp, 5*time.Second)

	p, err := iss.Verify(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), p.UserID)
	assert.Equal(t, "a@b.nl", p.Email)
	assert.Equal(t, []model.Role{model.RoleStudent}, p.Roles)
	assert.Equal(t, []string{model.ScopeReadModules}, p.Scopes)

	assert.True(t, model.PrincipalHasScope(p, model.ScopeReadModules))
	assert.False(t, model.PrincipalHasRole(p, model.RoleTeacher))
}

func TestTTLIsCappedAtOneHour(t *testing.T) {
	iss := NewTokenIssuer("s", "i", "a", 24*time.Hour)
	tok, err := iss.Issue(&model.User{ID: 1})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Exp, 5*time.Second)
}

func TestVerifyRejects(t *testing.T) {
	iss := testIssuer()
	user := &model.User{ID: 1, Email: "x@y.z"}

	other := NewTokenIssuer("other-secret", "vkm-api", "vkm-users", time.Hour)
	forged, err := other.Issue(user)
	require.NoError(t, err)
	_, err = iss.Verify(forged.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongAud := NewTokenIssuer("test-secret", "vkm-api", "someone-else", time.Hour)
	tok, err := wrongAud.Issue(user)
	require.NoError(t, err)
	_, err = iss.Verify(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	past := testIssuer()
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := past.Issue(user)
	require.NoError(t, err)
	_, err = iss.Verify(old.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)

	_, err = iss.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
	_, err = iss.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	iss := testIssuer()
	claims := SessionClaims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{
		Issuer: "vkm-api", Audience: jwt.ClaimStrings{"vkm-users"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	raw, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", raw)

	for _, h := range []string{"", "Bearer ", "Basic abc", "abc"} {
		_, err := BearerToken(h)
		assert.ErrorIs(t, err, ErrMissingToken, h)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("Secret1!", 4)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "Secret1!"))
	assert.False(t, VerifyPassword(hash, "secret1!"))
	assert.False(t, VerifyPassword("", "Secret1!"))

	longest := "Secret1!" + strings.Repeat("a", MaxPasswordBytes-8)
	require.NoError(t, ValidatePassword(longest))
	_, err = HashPassword(longest, 4)
	assert.NoError(t, err)
}

func TestValidatePassword(t *testing.T) {
	cases := map[string]error{
		"Abcdef1!":  nil,
		"Ab1!":      ErrPasswordTooShort,
		"abcdefg1!": ErrPasswordUpper,
		"Abcdefgh!": ErrPasswordDigit,
		"Abcdefgh1": ErrPasswordSymbol,
		"Abcdefg1?": ErrPasswordSymbol,
		"Secret1!" + strings.Repeat("a", 64): nil,
		"Secret1!" + strings.Repeat("a", 70): ErrPasswordTooLong,
		"ab1!" + strings.Repeat("a", 70):     ErrPasswordUpper,
	}
	for pw, want := range cases {
		err := ValidatePassword(pw)
		if want == nil {
			assert.NoError(t, err, pw)
		} else {
			assert.ErrorIs(t, err, want, pw)
		}
	}
}

func TestValidateRegistrationOrder(t *testing.T) {
	assert.ErrorIs(t, ValidateRegistration("ab", "bad", "weak"), ErrUsernameTooShort)
	assert.ErrorIs(t, ValidateRegistration("abc", "bad", "weak"), ErrEmailInvalid)
	assert.ErrorIs(t, ValidateRegistration("abc", "a@b.nl", "weak"), ErrPasswordTooShort)
	assert.NoError(t, ValidateRegistration("abc", "a@b.nl", "Str0ng!pw"))
	assert.ErrorIs(t, ValidateUsername(strings.Repeat(" ", 5)), ErrUsernameTooShort)
}

func TestRequestValidator(t *testing.T) {
	type body struct {
		IDToken string `validate:"required"`
	}
	v := RequestValidator{}
	assert.Error(t, v.Validate(&body{}))
	assert.NoError(t, v.Validate(&body{IDToken: "x"}))
}
