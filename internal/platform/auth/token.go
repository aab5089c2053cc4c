package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken: HS256, sub=userId, role, exp
func IssueToken(secret []byte, u *User, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(secret)
}

// ParseToken: 署名・期限・sub/role を検証して Caller を返す
func ParseToken(secret []byte, tokenStr string) (Caller, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Caller{}, err
	}
	if !token.Valid {
		return Caller{}, errors.New("invalid token")
	}
	if c.Subject == "" {
		return Caller{}, errors.New("missing sub")
	}
	role := Role(c.Role)
	if !role.Valid() {
		return Caller{}, errors.New("invalid role")
	}
	return Caller{UserID: c.Subject, Role: role}, nil
}
