package ledger

import "errors"

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the
	// payer's balance
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotOwner is returned when a non-fungible transfer names a sender
	// who does not hold the token
	ErrNotOwner = errors.New("sender does not own token")

	// ErrNilAmount is returned when a transfer or mint carries no amount
	ErrNilAmount = errors.New("nil amount")

	// ErrBalanceOverflow is returned when a mint would push a balance past
	// 256 bits
	ErrBalanceOverflow = errors.New("balance overflow")
)
