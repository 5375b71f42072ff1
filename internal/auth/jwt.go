package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

const issuer = "checkout-transactions"

type sessionClaims struct {
	jwt.RegisteredClaims
	TransactionID string `json:"transaction_id"`
}

// IssueSessionToken returns the bearer token a client presents on every
// later call for the transaction it activated.
func IssueSessionToken(id domain.TransactionID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TransactionID: id.String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("IssueSessionToken: %w", err)
	}
	return signed, nil
}

func ParseSessionToken(tokenString string, secret string) (domain.TransactionID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return domain.TransactionID{}, fmt.Errorf("ParseSessionToken: %w", err)
	}

	sc, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return domain.TransactionID{}, fmt.Errorf("ParseSessionToken: invalid token claims")
	}

	id, err := domain.ParseTransactionID(sc.TransactionID)
	if err != nil {
		return domain.TransactionID{}, fmt.Errorf("ParseSessionToken: invalid transaction_id in token: %w", err)
	}
	return id, nil
}
