// Package auth issues and parses the JSON Web Tokens that identify storefront users.
// A token carries the user ID and the role the user had when it was issued.
package auth

import (
	"time"

	"topup_store/internal/config"
	"topup_store/internal/models"

	"github.com/golang-jwt/jwt/v4"
)

// TOKENEXP defines the token expiration duration.
const TOKENEXP = time.Hour * 3

// Claims are the custom JWT claims of a storefront token.
type Claims struct {
	UserID int32
	Role   models.Role
	jwt.RegisteredClaims
}

func secretKey() []byte {
	return []byte(config.JWTSecret)
}

// GenerateToken creates a signed token for a user.
func GenerateToken(userID int32, role models.Role) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TOKENEXP)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
		Role:   role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey())
}

// ParseToken validates the token string and returns its claims.
func ParseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secretKey(), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
