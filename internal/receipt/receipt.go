// Package receipt issues short-lived signed proofs of a successful
// verification. Downstream services accept the receipt instead of replaying
// the verification flow.
package receipt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"otpgate/pkg/domain"
	dErrors "otpgate/pkg/domain-errors"
)

// Claims carries the verified subject. The national identifier is masked;
// the receipt proves possession of the registered mobile, not identity data.
type Claims struct {
	Subject    string `json:"subject"`
	VerifiedAt int64  `json:"verified_at"`
	jwt.RegisteredClaims
}

// Issuer signs and validates verification receipts with a shared HS256 key.
type Issuer struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

type Option func(*Issuer)

// WithNow overrides the time source for tests.
func WithNow(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(signingKey string, issuer string, ttl time.Duration, opts ...Option) *Issuer {
	i := &Issuer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue creates a receipt for a freshly verified national identifier.
func (i *Issuer) Issue(nationalID domain.NationalID, verifiedAt time.Time) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Subject:    nationalID.Masked(),
		VerifiedAt: verifiedAt.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    i.issuer,
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(i.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign receipt")
	}
	return signed, nil
}

// Validate parses a receipt and returns its claims.
func (i *Issuer) Validate(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return i.signingKey, nil
	}, jwt.WithTimeFunc(i.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "receipt has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid receipt")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid receipt")
	}
	return claims, nil
}
