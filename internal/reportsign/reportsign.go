// Package reportsign produces an HS256-signed attestation of a
// report's verdict fields, so a CI pipeline can verify a report
// wasn't hand-edited between the evaluator run and the merge gate
// that reads it.
package reportsign

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the attested subset of a report: just enough to catch
// tampering with the fields a gate actually decides on.
type Claims struct {
	Verdict            string `json:"verdict"`
	Recall             float64 `json:"recall"`
	FalsePositiveCount int    `json:"false_positive_count"`
	jwt.RegisteredClaims
}

// Sign produces a compact JWS over the report's verdict fields.
func Sign(key []byte, verdict string, recall float64, falsePositiveCount int) (string, error) {
	claims := Claims{
		Verdict:            verdict,
		Recall:             recall,
		FalsePositiveCount: falsePositiveCount,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
			Issuer:   "compmatch",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("reportsign: sign: %w", err)
	}
	return signed, nil
}

// Verify checks a signed attestation and returns its claims.
func Verify(key []byte, signed string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reportsign: verify: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("reportsign: signature invalid")
	}
	return claims, nil
}
