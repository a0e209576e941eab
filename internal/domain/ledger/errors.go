package ledger

import "fmt"

// InsufficientBalanceError is returned when a spend exceeds the current
// balance. The balance it reports is the balance at check time.
type InsufficientBalanceError struct {
	AccountID string
	Balance   int
	Requested int
}

func (e InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient sunflower balance for account %s: have %d, requested %d",
		e.AccountID, e.Balance, e.Requested)
}
