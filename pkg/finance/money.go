package finance

import (
	"fmt"

	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
)

// CurrencyINR is the only currency fees are charged in.
const CurrencyINR = "INR"

// Money is an amount in whole currency units.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// INR returns an amount in rupees.
func INR(amount int64) Money {
	return Money{Amount: amount, Currency: CurrencyINR}
}

func (m Money) String() string {
	return fmt.Sprintf("%s %d", m.Currency, m.Amount)
}

// TotalRevenue sums the successful payments. Failed confirmations carry no
// money and are skipped.
func TotalRevenue(payments []contracts.PaymentConfirmation) Money {
	var total int64
	for _, p := range payments {
		if p.Success {
			total += p.Amount
		}
	}
	return INR(total)
}

// ValidMethod reports whether m is an accepted payment instrument.
func ValidMethod(m contracts.PaymentMethod) bool {
	switch m {
	case contracts.PaymentUPI, contracts.PaymentCard, contracts.PaymentNetBanking:
		return true
	}
	return false
}
