package pass

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/checkout/internal/apperrors"
	"github.com/nkiryanov/checkout/internal/clock"
	"github.com/nkiryanov/checkout/internal/models"
)

func Test_Issuer(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	completed := models.Order{
		ID:              uuid.New(),
		ProviderOrderID: "PP-1",
		ProductID:       "ebook",
		Status:          models.OrderCompleted,
	}

	t.Run("defaults", func(t *testing.T) {
		i, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)

		assert.Equal(t, defaultTTL, i.ttl)
		assert.Equal(t, "HS256", i.alg.Alg())
		assert.NotNil(t, i.clock)
	})

	t.Run("secret required", func(t *testing.T) {
		_, err := New(Config{})
		require.Error(t, err)
	})

	t.Run("only hmac allowed", func(t *testing.T) {
		_, err := New(Config{SecretKey: "secret", Alg: "RS256"})
		require.Error(t, err)
	})

	t.Run("issue and parse", func(t *testing.T) {
		clk := clock.NewManual(now)
		i, err := New(Config{SecretKey: "secret", TTL: time.Hour, Clock: clk})
		require.NoError(t, err)

		p, err := i.Issue(completed)
		require.NoError(t, err)
		require.Equal(t, now.Add(time.Hour), p.ExpiresAt)

		claims, err := i.Parse(p.Value)
		require.NoError(t, err)
		require.Equal(t, "PP-1", claims.OrderID)
		require.Equal(t, "ebook", claims.ProductID)
		require.NotEmpty(t, claims.ID)
		require.Equal(t, now, claims.IssuedAt.Time.UTC())
	})

	t.Run("not completed order", func(t *testing.T) {
		i, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)

		for _, status := range []string{models.OrderCreated, models.OrderApproved, models.OrderVoided, models.OrderExpired} {
			order := completed
			order.Status = status

			_, err := i.Issue(order)
			require.ErrorIs(t, err, apperrors.ErrOrderNotCompleted, "status %s", status)
		}
	})

	t.Run("expired pass", func(t *testing.T) {
		clk := clock.NewManual(now)
		i, err := New(Config{SecretKey: "secret", TTL: time.Hour, Clock: clk})
		require.NoError(t, err)

		p, err := i.Issue(completed)
		require.NoError(t, err)

		clk.Advance(time.Hour + time.Second)

		_, err = i.Parse(p.Value)
		require.ErrorIs(t, err, apperrors.ErrPassInvalid)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("other key", func(t *testing.T) {
		i, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)
		other, err := New(Config{SecretKey: "other"})
		require.NoError(t, err)

		p, err := other.Issue(completed)
		require.NoError(t, err)

		_, err = i.Parse(p.Value)
		require.ErrorIs(t, err, apperrors.ErrPassInvalid)
	})

	t.Run("other algorithm", func(t *testing.T) {
		i, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)
		other, err := New(Config{SecretKey: "secret", Alg: "HS512"})
		require.NoError(t, err)

		p, err := other.Issue(completed)
		require.NoError(t, err)

		_, err = i.Parse(p.Value)
		require.ErrorIs(t, err, apperrors.ErrPassInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		i, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)

		_, err = i.Parse("not-a-jwt")
		require.ErrorIs(t, err, apperrors.ErrPassInvalid)
	})
}
