package utils

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cppla/bharatinvest/config"
)

const (
	// TokenTTL is the lifetime of issued access tokens.
	TokenTTL = 72 * time.Hour
	// TokenIssuer is stamped on every token and required when parsing.
	TokenIssuer = "bharatinvest"
)

// Claims identify the wallet holder a token was issued to. The token id (jti) keys single-token
// revocation; IssuedMicros orders the token against a user's session cut-off.
type Claims struct {
	UserID       uint   `json:"uid"`
	Username     string `json:"name"`
	IssuedMicros int64  `json:"iat_us"`
	jwt.RegisteredClaims
}

// GenerateToken issues a JWT for the specified user identity.
func GenerateToken(userID uint, username string, duration time.Duration) (string, error) {
	cfg := config.Get()
	now := time.Now()

	claims := Claims{
		UserID:       userID,
		Username:     username,
		IssuedMicros: now.UnixMicro(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    TokenIssuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseToken validates a JWT and returns its claims.
func ParseToken(tokenStr string) (*Claims, error) {
	cfg := config.Get()
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.ID == "" || claims.UserID == 0 {
		return nil, errors.New("token lacks id or subject")
	}

	return claims, nil
}

// expiresAt is when claims stop being accepted regardless of revocation.
func (c *Claims) expiresAt() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Now().Add(TokenTTL)
}
