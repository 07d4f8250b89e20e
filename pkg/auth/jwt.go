package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token expired")
	ErrWrongTokenUse = errors.New("wrong token type")
)

// Claims are the JWT claims issued by the API.
type Claims struct {
	UserID    uuid.UUID `json:"uid"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// TokenID returns the jti claim.
func (c *Claims) TokenID() string {
	return c.ID
}

// Subject is the identity a token pair is issued for.
type Subject struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// IssuedToken is a signed token plus the metadata a session store needs.
type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenPair groups the access and refresh tokens of one login.
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// TokenManager signs and validates HS256 tokens.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, issuer string) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		issuer:        issuer,
		now:           time.Now,
	}
}

// Issue signs a fresh access/refresh pair for sub.
func (m *TokenManager) Issue(sub Subject) (*TokenPair, error) {
	access, err := m.sign(sub, AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sign(sub, RefreshToken)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: *access, Refresh: *refresh}, nil
}

func (m *TokenManager) sign(sub Subject, typ TokenType) (*IssuedToken, error) {
	secret, ttl := m.accessSecret, m.accessTTL
	if typ == RefreshToken {
		secret, ttl = m.refreshSecret, m.refreshTTL
	}

	now := m.now()
	id := uuid.NewString()
	exp := now.Add(ttl)
	claims := Claims{
		UserID:    sub.UserID,
		Email:     sub.Email,
		Role:      sub.Role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    m.issuer,
			Subject:   sub.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return &IssuedToken{Token: signed, ID: id, ExpiresAt: exp}, nil
}

// ValidateAccess parses an access token.
func (m *TokenManager) ValidateAccess(token string) (*Claims, error) {
	return m.validate(token, AccessToken)
}

// ValidateRefresh parses a refresh token.
func (m *TokenManager) ValidateRefresh(token string) (*Claims, error) {
	return m.validate(token, RefreshToken)
}

func (m *TokenManager) validate(token string, typ TokenType) (*Claims, error) {
	secret := m.accessSecret
	if typ == RefreshToken {
		secret = m.refreshSecret
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != typ {
		return nil, ErrWrongTokenUse
	}
	return claims, nil
}
