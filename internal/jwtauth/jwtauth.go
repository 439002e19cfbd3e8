// Package jwtauth issues and verifies the HS256 service tokens that bind a
// calling service to a tenant.
//
// Tokens are minted out of band with the shared signing key. The middleware
// verifies the signature and refuses any request whose token names a
// different tenant than the one the request resolved to, so a leaked token
// for one tenant cannot read another's corrections. An empty signing key
// keeps the middleware out of the chain entirely (header-trusted dev mode).
package jwtauth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
)

// Claims are the verified contents of a service token.
type Claims struct {
	Service  string `json:"service"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Service signs and verifies service tokens with a shared HS256 key.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey string, issuer string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// GenerateServiceToken mints a token granting service access to tenantID
// until expiresIn elapses.
func (s *Service) GenerateServiceToken(service string, tenantID id.TenantID, expiresIn time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Service:  service,
		TenantID: tenantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   service,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// ValidateToken verifies the signature and expiry and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}
