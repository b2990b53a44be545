package middleware

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appctx "fleetledger/internal/core/context"
	"fleetledger/internal/core/id"
)

const tokenIssuer = "fleetledger"

// Claims carried by ledger access tokens.
type Claims struct {
	jwt.RegisteredClaims
	OrganizationID string   `json:"org"`
	Roles          []string `json:"roles,omitempty"`
}

// JWTService validates HS256 tokens issued by the fleet platform.
type JWTService struct {
	secret []byte
	ttl    time.Duration
}

func NewJWTService(secret string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &JWTService{secret: []byte(secret), ttl: ttl}
}

// IssueToken signs a token for userID acting in orgID.
// Used by service-to-service callers and tests.
func (s *JWTService) IssueToken(userID string, orgID id.ID, roles ...string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		OrganizationID: orgID.String(),
		Roles:          roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken implements TokenValidator.
func (s *JWTService) ValidateToken(tokenString string) (*appctx.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	orgID, err := id.Parse(claims.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("invalid organization claim: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("missing subject")
	}

	return &appctx.Actor{
		UserID:         claims.Subject,
		OrganizationID: orgID,
		Roles:          claims.Roles,
	}, nil
}
