package matching

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Config controls candidate scoring and the decision thresholds applied
// on top of it. Weights must sum to 1 so composite scores stay in [0,1].
type Config struct {
	// AmountWeight is awarded when the transaction amount equals the
	// invoice's outstanding amount within AmountEpsilon.
	AmountWeight float64

	// ReferenceWeight is awarded when the invoice number appears
	// verbatim (case-insensitive) in the transaction reference or
	// description.
	ReferenceWeight float64

	// DateWeight decays linearly to zero as the gap between the
	// transaction date and the invoice due date approaches
	// DateWindowDays.
	DateWeight float64

	// AmountEpsilon is the maximum absolute amount difference still
	// counted as equal. Zero by default: financial amounts reconcile
	// exactly.
	AmountEpsilon decimal.Decimal

	DateWindowDays int

	// AutoAcceptScore and ReviewScore are inclusive thresholds: a top
	// candidate at exactly AutoAcceptScore is committed automatically,
	// one at exactly ReviewScore is queued for review.
	AutoAcceptScore float64
	ReviewScore     float64
}

// Default returns the stock policy: 0.5/0.35/0.15 weights, exact amount
// matching, a 15 day date window and 0.9/0.5 thresholds.
func Default() Config {
	return Config{
		AmountWeight:    0.5,
		ReferenceWeight: 0.35,
		DateWeight:      0.15,
		AmountEpsilon:   decimal.Zero,
		DateWindowDays:  15,
		AutoAcceptScore: 0.9,
		ReviewScore:     0.5,
	}
}

// Validate checks the configuration is internally consistent.
func (c Config) Validate() error {
	for name, w := range map[string]float64{
		"amount weight":    c.AmountWeight,
		"reference weight": c.ReferenceWeight,
		"date weight":      c.DateWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s must be between 0.0 and 1.0: %f", name, w)
		}
	}

	total := c.AmountWeight + c.ReferenceWeight + c.DateWeight
	if math.Abs(total-1.0) > 0.001 {
		return fmt.Errorf("weights must sum to 1.0, got %f", total)
	}

	if c.AmountEpsilon.IsNegative() {
		return fmt.Errorf("amount epsilon cannot be negative: %s", c.AmountEpsilon)
	}

	if c.DateWindowDays <= 0 {
		return fmt.Errorf("date window days must be positive: %d", c.DateWindowDays)
	}

	if c.AutoAcceptScore < 0 || c.AutoAcceptScore > 1 {
		return fmt.Errorf("auto accept score must be between 0.0 and 1.0: %f", c.AutoAcceptScore)
	}

	if c.ReviewScore < 0 || c.ReviewScore > 1 {
		return fmt.Errorf("review score must be between 0.0 and 1.0: %f", c.ReviewScore)
	}

	if c.ReviewScore > c.AutoAcceptScore {
		return fmt.Errorf("review score (%f) cannot exceed auto accept score (%f)", c.ReviewScore, c.AutoAcceptScore)
	}

	return nil
}
