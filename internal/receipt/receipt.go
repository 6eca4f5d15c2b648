// Package receipt signs the values shown on the success page so the page can
// tell a confirmed payment from hand-edited query parameters.
package receipt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTTL = 24 * time.Hour

var ErrInvalidReceipt = errors.New("invalid receipt")

type Receipt struct {
	PaymentIntentID string
	OrderNumber     string
	Amount          int64
	Currency        string
}

type claims struct {
	PaymentIntentID string `json:"pi"`
	OrderNumber     string `json:"ord"`
	Amount          int64  `json:"amt"`
	Currency        string `json:"cur"`
	jwt.RegisteredClaims
}

type Signer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(key, issuer string) *Signer {
	if key == "" {
		panic("key required for receipt.Signer")
	}
	return &Signer{
		key:    []byte(key),
		issuer: issuer,
		ttl:    defaultTTL,
		now:    time.Now,
	}
}

func (s *Signer) Sign(r Receipt) (string, error) {
	now := s.now()
	c := claims{
		PaymentIntentID: r.PaymentIntentID,
		OrderNumber:     r.OrderNumber,
		Amount:          r.Amount,
		Currency:        r.Currency,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   r.PaymentIntentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing receipt: %w", err)
	}
	return token, nil
}

func (s *Signer) Verify(token string) (Receipt, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}

	return Receipt{
		PaymentIntentID: c.PaymentIntentID,
		OrderNumber:     c.OrderNumber,
		Amount:          c.Amount,
		Currency:        c.Currency,
	}, nil
}
