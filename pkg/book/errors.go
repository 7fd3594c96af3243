package book

import "errors"

// Precondition failures. Each aborts the whole operation with no state
// change. A fill request larger than the order's remaining quantity is
// deliberately not an error: it commits and transfers zero, so that success
// or failure of the call does not leak how deep the order is.
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotActive      = errors.New("order not active")
	ErrOrderExpired        = errors.New("order expired")
	ErrOnlySellerCanCancel = errors.New("only the seller can cancel an order")
	ErrInsufficientPayment = errors.New("payment below order price")
	ErrAssetNotFound       = errors.New("asset not listed")
	ErrInsufficientFunds   = errors.New("insufficient withdrawable funds")
)
