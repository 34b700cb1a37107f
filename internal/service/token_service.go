package service

import (
	"fmt"
	"time"

	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTTokenService implements ports.TokenService using HS256 JWT.
type JWTTokenService struct {
	secret []byte
	expiry time.Duration
	issuer string
}

// NewJWTTokenService creates a new JWT token service.
func NewJWTTokenService(secret string, expiry time.Duration, issuer string) *JWTTokenService {
	return &JWTTokenService{
		secret: []byte(secret),
		expiry: expiry,
		issuer: issuer,
	}
}

// Generate creates a signed JWT for a back-office actor.
func (s *JWTTokenService) Generate(actor domain.Actor) (string, time.Time, error) {
	if !actor.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("invalid role %q", actor.Role)
	}

	now := time.Now()
	expiresAt := now.Add(s.expiry)

	claims := jwt.MapClaims{
		"sub":  actor.ID.String(),
		"role": string(actor.Role),
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
		"iss":  s.issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Validate parses and validates a JWT token, returning the claims.
func (s *JWTTokenService) Validate(tokenString string) (*ports.TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return nil, fmt.Errorf("missing subject claim")
	}

	actorID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("invalid actor ID in token: %w", err)
	}

	roleStr, _ := claims["role"].(string)
	role := domain.Role(roleStr)
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role claim %q", roleStr)
	}

	return &ports.TokenClaims{
		ActorID: actorID,
		Role:    role,
	}, nil
}
