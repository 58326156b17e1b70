package apperrors

import (
	"errors"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrProductInvalid  = errors.New("product is invalid")

	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
	ErrOrderNotCompleted  = errors.New("order is not completed")
	ErrOrderStatusChanged = errors.New("order status changed concurrently")

	ErrPassInvalid = errors.New("access pass is invalid")
)
