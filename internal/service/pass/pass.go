package pass

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/checkout/internal/apperrors"
	"github.com/nkiryanov/checkout/internal/clock"
	"github.com/nkiryanov/checkout/internal/models"
)

const (
	defaultTTL           = 30 * 24 * time.Hour
	defaultSigningMethod = "HS256"
)

// Claims of the access pass: who paid for what
type Claims struct {
	jwt.RegisteredClaims
	OrderID   string `json:"oid"`
	ProductID string `json:"pid"`
}

// Pass proves the product was paid for
type Pass struct {
	Value     string
	ExpiresAt time.Time
}

// Issuer config with sensible defaults
type Config struct {
	// Secret key to sign passes
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Pass lifetime. If not set than default is used
	TTL time.Duration

	// If not set system clock is used
	Clock clock.Clock
}

type Issuer struct {
	key   []byte
	alg   jwt.SigningMethod
	ttl   time.Duration
	clock clock.Clock
}

func New(cfg Config) (*Issuer, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if _, ok := alg.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing method %q", cfg.Alg)
	}

	if cfg.TTL == 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}

	return &Issuer{
		key:   []byte(cfg.SecretKey),
		alg:   alg,
		ttl:   cfg.TTL,
		clock: cfg.Clock,
	}, nil
}

// Issue signs pass for completed order only
func (i *Issuer) Issue(order models.Order) (Pass, error) {
	if order.Status != models.OrderCompleted {
		return Pass{}, apperrors.ErrOrderNotCompleted
	}

	now := i.clock.Now().Truncate(time.Second)
	expiresAt := now.Add(i.ttl)

	token := jwt.NewWithClaims(i.alg, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		OrderID:   order.ProviderOrderID,
		ProductID: order.ProductID,
	})

	value, err := token.SignedString(i.key)
	if err != nil {
		return Pass{}, fmt.Errorf("error while signing pass. Err: %w", err)
	}

	return Pass{Value: value, ExpiresAt: expiresAt}, nil
}

// Parse validates signature, algorithm and expiry
func (i *Issuer) Parse(value string) (Claims, error) {
	var claims Claims

	_, err := jwt.ParseWithClaims(
		value,
		&claims,
		func(t *jwt.Token) (any, error) {
			return i.key, nil
		},
		jwt.WithValidMethods([]string{i.alg.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", apperrors.ErrPassInvalid, err)
	}

	return claims, nil
}
