package matching

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchingConfig holds the tolerances used to find and classify candidates.
type MatchingConfig struct {
	// AmountTolerance is the half-width of the amount band as a fraction of the
	// statement line amount.
	AmountTolerance decimal.Decimal
	DateWindowDays  int
	MaxCandidates   int
	// ExactEpsilon is the largest amount difference still treated as exact.
	ExactEpsilon decimal.Decimal
}

func DefaultMatchingConfig() MatchingConfig {
	return MatchingConfig{
		AmountTolerance: decimal.NewFromFloat(0.10),
		DateWindowDays:  30,
		MaxCandidates:   3,
		ExactEpsilon:    decimal.NewFromFloat(0.005),
	}
}

func (c MatchingConfig) Validate() error {
	if !c.AmountTolerance.IsPositive() || c.AmountTolerance.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("amount tolerance must be in (0,1), got %s", c.AmountTolerance)
	}
	if c.DateWindowDays < 0 {
		return fmt.Errorf("date window must not be negative, got %d", c.DateWindowDays)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max candidates must be positive, got %d", c.MaxCandidates)
	}
	if c.ExactEpsilon.IsNegative() {
		return fmt.Errorf("exact epsilon must not be negative, got %s", c.ExactEpsilon)
	}
	return nil
}

// Band returns the inclusive amount range accepted for a line of the given amount.
func (c MatchingConfig) Band(amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	one := decimal.NewFromInt(1)
	abs := amount.Abs()
	return abs.Mul(one.Sub(c.AmountTolerance)), abs.Mul(one.Add(c.AmountTolerance))
}

// NewMatchingConfig builds a config from plain settings, keeping the default
// exact epsilon.
func NewMatchingConfig(amountTolerance float64, dateWindowDays, maxCandidates int) MatchingConfig {
	cfg := DefaultMatchingConfig()
	cfg.AmountTolerance = decimal.NewFromFloat(amountTolerance)
	cfg.DateWindowDays = dateWindowDays
	cfg.MaxCandidates = maxCandidates
	return cfg
}
