package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/checkout/internal/testutil"
)

func Test_run(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	port, err := testutil.RandomPort()
	require.NoError(t, err, "failed to get random port to start server")
	listenAddr := fmt.Sprintf("localhost:%d", port)

	// Environment of the machine running tests must not leak in
	getenv := func(string) string { return "" }
	getwd := func() (string, error) { return t.TempDir(), nil }

	args := []string{
		"--address", listenAddr,
		"--log-level", "debug",
		"--database", pg.DSN,
		"--paypal-client-id", "id",
		"--paypal-client-secret", "secret",
		"--product-id", "ebook",
		"--product-name", "E-book",
		"--product-price", "9.99",
	}

	t.Run("stop with signal", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		err := run(ctx, getenv, getwd, append(args, "--pass-secret-key", "secret"))

		require.NoError(t, err, "on correct stop should not return error")
	})

	t.Run("stop with srv error", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		// Try to run without secret key. Must fail
		err := run(ctx, getenv, getwd, args)

		require.Error(t, err, "on incorrect stop should return error")
	})
}
