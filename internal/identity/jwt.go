package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

var (
	ErrInvalidToken = fmt.Errorf("%w: invalid token", domain.ErrAuthInvalid)
	ErrExpiredToken = fmt.Errorf("%w: token has expired", domain.ErrAuthInvalid)
	ErrMissingSub   = fmt.Errorf("%w: missing account id in claims", domain.ErrAuthInvalid)
)

// Claims are the account claims issued by the storefront's auth service.
// The account id travels in sub; older tokens carry it in account_id.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id,omitempty"`
}

func (c *Claims) accountID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.AccountID
}

// JWTVerifier validates HS256 account tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify returns the account id carried by token. Every failure wraps
// domain.ErrAuthInvalid.
func (v *JWTVerifier) Verify(token string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	id := claims.accountID()
	if id == "" {
		return "", ErrMissingSub
	}
	return id, nil
}

// Sign issues a token for accountID. The storefront's auth service owns
// issuance; this exists for tooling and tests.
func (v *JWTVerifier) Sign(accountID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    v.issuer,
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
