package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nkiryanov/checkout/internal/handlers/middleware"
	"github.com/nkiryanov/checkout/internal/handlers/render"
	"github.com/nkiryanov/checkout/internal/logger"
)

const healthTimeout = 2 * time.Second

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(
	checkoutService checkoutService,
	issuer passIssuer,
	db pinger,
	logger logger.Logger,
) http.Handler {
	api := NewCheckout(checkoutService, issuer, logger).Handler()

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("GET /health", handleHealth(db))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
		middleware.Recoverer(logger),
	)

	return handler
}

func handleHealth(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()

			if err := db.Ping(ctx); err != nil {
				render.JSONWithStatus(w, map[string]string{"status": "unavailable"}, http.StatusServiceUnavailable)
				return
			}
		}

		render.JSON(w, map[string]string{"status": "ok"})
	}
}
