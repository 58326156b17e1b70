package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/checkout/internal/logger"
	"github.com/nkiryanov/checkout/internal/models"
)

const (
	defaultListenAddr        = "localhost:8000"
	defaultLoggingLevel      = logger.LevelInfo
	defaultEnvironment       = logger.EnvProduction
	defaultProductCurrency   = "USD"
	defaultReconcileInterval = 30 * time.Second
	defaultBreakerThreshold  = 5
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the checkout service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Environment
	Environment string

	// PayPal REST app credentials
	PayPalClientID     string
	PayPalClientSecret string

	// Use PayPal sandbox instead of live
	PayPalSandbox bool

	// Shown to the buyer on PayPal pages
	PayPalBrandName string

	// Where PayPal sends the buyer after approval or cancellation
	PayPalReturnURL string
	PayPalCancelURL string

	// Consecutive PayPal failures before requests fail fast. Zero disables the breaker
	PayPalBreakerThreshold uint

	// The product for sale
	ProductID       string
	ProductName     string
	ProductPrice    string
	ProductCurrency string

	// Redis to share PayPal tokens between instances. Tokens are kept in memory if empty
	RedisAddr string

	// Secret key to sign access passes
	PassSecretKey string

	// Capture orders as soon as buyer approves them, without waiting for capture request
	AutoCapture bool

	// How often pending orders are checked at PayPal
	ReconcileInterval time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:               defaultLoggingLevel,
		ListenAddr:             defaultListenAddr,
		Environment:            defaultEnvironment,
		PayPalSandbox:          true,
		PayPalBreakerThreshold: defaultBreakerThreshold,
		ProductCurrency:        defaultProductCurrency,
		ReconcileInterval:      defaultReconcileInterval,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			*o = value
			return nil
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) (err error) {
			*o, err = strconv.ParseBool(value)
			return err
		}
	}
	setUint := func(o *uint) func(value string) error {
		return func(value string) error {
			v, err := strconv.ParseUint(value, 10, 32)
			*o = uint(v)
			return err
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) (err error) {
			*o, err = time.ParseDuration(value)
			return err
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":              setString(&c.ListenAddr),
		"DATABASE_URI":             setString(&c.DatabaseDSN),
		"LOG_LEVEL":                setString(&c.LogLevel),
		"ENVIRONMENT":              setString(&c.Environment),
		"PAYPAL_CLIENT_ID":         setString(&c.PayPalClientID),
		"PAYPAL_CLIENT_SECRET":     setString(&c.PayPalClientSecret),
		"PAYPAL_SANDBOX":           setBool(&c.PayPalSandbox),
		"PAYPAL_BRAND_NAME":        setString(&c.PayPalBrandName),
		"PAYPAL_RETURN_URL":        setString(&c.PayPalReturnURL),
		"PAYPAL_CANCEL_URL":        setString(&c.PayPalCancelURL),
		"PAYPAL_BREAKER_THRESHOLD": setUint(&c.PayPalBreakerThreshold),
		"PRODUCT_ID":               setString(&c.ProductID),
		"PRODUCT_NAME":             setString(&c.ProductName),
		"PRODUCT_PRICE":            setString(&c.ProductPrice),
		"PRODUCT_CURRENCY":         setString(&c.ProductCurrency),
		"REDIS_ADDRESS":            setString(&c.RedisAddr),
		"PASS_SECRET_KEY":          setString(&c.PassSecretKey),
		"AUTO_CAPTURE":             setBool(&c.AutoCapture),
		"RECONCILE_INTERVAL":       setDuration(&c.ReconcileInterval),
	}

	var errs []error
	for key, parseFn := range envMap {
		value := getenv(key)
		if value == "" {
			continue
		}
		if err := parseFn(value); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("checkout", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.PayPalClientID, "paypal-client-id", c.PayPalClientID, "PayPal REST app client id")
	fs.StringVar(&c.PayPalClientSecret, "paypal-client-secret", c.PayPalClientSecret, "PayPal REST app secret")
	fs.BoolVar(&c.PayPalSandbox, "paypal-sandbox", c.PayPalSandbox, "Use PayPal sandbox")
	fs.StringVar(&c.PayPalBrandName, "paypal-brand-name", c.PayPalBrandName, "Brand name shown on PayPal pages")
	fs.StringVar(&c.PayPalReturnURL, "paypal-return-url", c.PayPalReturnURL, "Buyer is sent here after approval")
	fs.StringVar(&c.PayPalCancelURL, "paypal-cancel-url", c.PayPalCancelURL, "Buyer is sent here after cancellation")
	fs.UintVar(&c.PayPalBreakerThreshold, "paypal-breaker-threshold", c.PayPalBreakerThreshold, "PayPal failures before failing fast (0 disables)")
	fs.StringVar(&c.ProductID, "product-id", c.ProductID, "Product id")
	fs.StringVar(&c.ProductName, "product-name", c.ProductName, "Product name")
	fs.StringVar(&c.ProductPrice, "product-price", c.ProductPrice, "Product price, e.g. 9.99")
	fs.StringVar(&c.ProductCurrency, "product-currency", c.ProductCurrency, "Product price currency (ISO 4217)")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address to share PayPal tokens")
	fs.StringVarP(&c.PassSecretKey, "pass-secret-key", "s", c.PassSecretKey, "Secret key to sign access passes")
	fs.BoolVar(&c.AutoCapture, "auto-capture", c.AutoCapture, "Capture approved orders in background")
	fs.DurationVar(&c.ReconcileInterval, "reconcile-interval", c.ReconcileInterval, "How often pending orders are checked")

	return fs.Parse(args)
}

// Validate checks required options are set
func (c *Config) Validate() error {
	var errs []error

	required := map[string]string{
		"database":             c.DatabaseDSN,
		"paypal-client-id":     c.PayPalClientID,
		"paypal-client-secret": c.PayPalClientSecret,
		"pass-secret-key":      c.PassSecretKey,
		"product-id":           c.ProductID,
		"product-name":         c.ProductName,
		"product-price":        c.ProductPrice,
	}
	for name, value := range required {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	if c.ProductPrice != "" {
		if _, err := decimal.NewFromString(c.ProductPrice); err != nil {
			errs = append(errs, fmt.Errorf("product-price is not a number: %w", err))
		}
	}

	if c.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("reconcile-interval must be positive"))
	}

	return errors.Join(errs...)
}

// Product configured for sale. Call after Validate.
func (c *Config) Product() models.Product {
	return models.Product{
		ID:       c.ProductID,
		Name:     c.ProductName,
		Price:    decimal.RequireFromString(c.ProductPrice),
		Currency: c.ProductCurrency,
	}
}
