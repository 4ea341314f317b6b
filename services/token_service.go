package services

import (
	"fmt"
	"time"

	"eventpass/config"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService signs and verifies the opaque tokens embedded in ticket QR
// codes. The signature guards against tokens forged out-of-band; tickets are
// still resolved by an equality lookup on the stored token value.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(cfg *config.Config) *TokenService {
	return &TokenService{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
	}
}

// TokenClaims are the bound ticket identity claims.
type TokenClaims struct {
	TicketCode string
	EventID    string
	ClientID   string
	IssuedAt   time.Time
}

func (s *TokenService) Issue(claims TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        claims.TicketCode,
		"ticketCode": claims.TicketCode,
		"eventId":    claims.EventID,
		"clientId":   claims.ClientID,
		"iat":        claims.IssuedAt.Unix(),
		"exp":        claims.IssuedAt.Add(s.ttl).Unix(),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign ticket token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and returns the embedded claims. Any parse or
// signature failure is returned as-is; callers treat it as "not found" so
// forged tokens fail closed.
func (s *TokenService) Verify(tokenString string) (*TokenClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("verify ticket token: %w", err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("verify ticket token: unexpected claims type")
	}

	claims := &TokenClaims{}
	if v, ok := mapClaims["ticketCode"].(string); ok {
		claims.TicketCode = v
	}
	if v, ok := mapClaims["eventId"].(string); ok {
		claims.EventID = v
	}
	if v, ok := mapClaims["clientId"].(string); ok {
		claims.ClientID = v
	}
	if v, ok := mapClaims["iat"].(float64); ok {
		claims.IssuedAt = time.Unix(int64(v), 0)
	}
	return claims, nil
}
