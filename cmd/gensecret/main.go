// Command gensecret prints a random key to sign access passes with
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

const defaultKeyBytes = 32

func main() {
	if err := run(os.Stdout, rand.Reader, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer, random io.Reader, args []string) error {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	size := fs.IntP("bytes", "b", defaultKeyBytes, "Key length in bytes (HS256 wants at least 32)")
	dotenv := fs.Bool("env", false, "Print as PASS_SECRET_KEY line for .env file")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *size < defaultKeyBytes {
		return fmt.Errorf("key must be at least %d bytes", defaultKeyBytes)
	}

	b := make([]byte, *size)
	if _, err := io.ReadFull(random, b); err != nil {
		return err
	}

	key := hex.EncodeToString(b)
	if *dotenv {
		key = "PASS_SECRET_KEY=" + key
	}

	_, err := fmt.Fprintln(out, key)
	return err
}
