// Package projection simulates flat-rate monthly compounding on a savings
// balance. It has no side effects and knows nothing about persistence.
package projection

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/riteshkumar/savings-ledger/internal/errors"
	"github.com/riteshkumar/savings-ledger/internal/models"
	"github.com/riteshkumar/savings-ledger/internal/money"
)

// MaxMonths bounds the horizon of a single projection (50 years).
const MaxMonths = 600

// Project compounds balance monthly at rate for the given number of months,
// starting from the month after now. A nil or zero rate yields zero interest.
func Project(balance money.Amount, rate *money.Rate, months int, now time.Time) ([]models.ProjectionEntry, error) {
	if months < 0 {
		return nil, errors.NewValidationError("months", "must be zero or greater")
	}
	if months > MaxMonths {
		return nil, errors.NewValidationError("months", fmt.Sprintf("must not exceed %d", MaxMonths))
	}

	monthlyRate := decimal.Zero
	if rate != nil {
		monthlyRate = rate.MonthlyFraction()
	}

	// Anchor on the first of the month so that e.g. Jan 31 + 1 month is February.
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	entries := make([]models.ProjectionEntry, 0, months)
	for i := 1; i <= months; i++ {
		interest := balance.MulRate(monthlyRate)
		balance = balance.Add(interest)
		entries = append(entries, models.ProjectionEntry{
			Month:    Label(start.AddDate(0, i, 0)),
			Interest: interest,
			Balance:  balance,
		})
	}
	return entries, nil
}

// Label formats a month as e.g. "MARCH 2026".
func Label(t time.Time) string {
	return fmt.Sprintf("%s %d", strings.ToUpper(t.Month().String()), t.Year())
}
