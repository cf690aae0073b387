package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	pkgutils "anoncart/pkg/utils"
)

// AnonymousSubjectType marks a credential as an anonymous session, as opposed
// to an account access or refresh token
const AnonymousSubjectType = "anonymous_session"

// AnonymousClaims payload of an anonymous session credential
type AnonymousClaims struct {
	AnonID  string `json:"anon_id"`
	SubType string `json:"sub_type"`
	jwt.RegisteredClaims
}

// AnonymousSession a freshly issued credential
type AnonymousSession struct {
	Token     string    `json:"token"`
	AnonID    string    `json:"anonymous_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AnonymousTokenManager issues and validates anonymous session credentials.
// Nothing is stored: the credential is the identity.
type AnonymousTokenManager struct {
	secretKey []byte
	issuer    string
	audience  string
	expire    time.Duration
	leeway    time.Duration
	now       func() time.Time
}

// NewAnonymousTokenManager creates an anonymous token manager. Missing signing
// configuration is reported here, never at validation time.
func NewAnonymousTokenManager(secretKey, issuer, audience string, expire, leeway time.Duration) (*AnonymousTokenManager, error) {
	if secretKey == "" || issuer == "" || audience == "" || expire <= 0 {
		return nil, pkgutils.ErrTokenConfig
	}
	return &AnonymousTokenManager{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		audience:  audience,
		expire:    expire,
		leeway:    leeway,
		now:       time.Now,
	}, nil
}

// Issue mints a credential for a new anonymous id
func (m *AnonymousTokenManager) Issue() (*AnonymousSession, error) {
	now := m.now()
	anonID := uuid.NewString()
	expiresAt := now.Add(m.expire)

	claims := &AnonymousClaims{
		AnonID:  anonID,
		SubType: AnonymousSubjectType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return nil, pkgutils.WrapError(err, pkgutils.ErrTokenConfig)
	}

	return &AnonymousSession{
		Token:     token,
		AnonID:    anonID,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate returns the anonymous id carried by token. Every kind of rejection
// yields ("", false) so callers cannot tell why.
func (m *AnonymousTokenManager) Validate(tokenString string) (string, bool) {
	if tokenString == "" {
		return "", false
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.leeway),
		jwt.WithTimeFunc(m.now),
	)

	claims := &AnonymousClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secretKey, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}

	if claims.SubType != AnonymousSubjectType || claims.AnonID == "" {
		return "", false
	}

	return claims.AnonID, true
}

// Expire returns the credential lifetime
func (m *AnonymousTokenManager) Expire() time.Duration {
	return m.expire
}
