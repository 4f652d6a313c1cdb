// Package validation turns raw user input into domain values.
//
// Malformed or non-positive numbers are reported as absent (ok == false)
// rather than as errors: the caller shows a prompt instead of failing.
package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/laifehacker/lso-roll-calculator/internal/model"
)

// InputOptions holds the bounds applied to parsed input
type InputOptions struct {
	// MaxPrice rejects absurd prices (typos such as an extra digit group)
	MaxPrice decimal.Decimal

	// MinWeeks and MaxWeeks bound a custom roll horizon
	MinWeeks int
	MaxWeeks int

	// DefaultWeeks is used when the custom horizon cannot be parsed
	DefaultWeeks int
}

// DefaultInputOptions returns the bounds used by the calculator
func DefaultInputOptions() InputOptions {
	return InputOptions{
		MaxPrice:     decimal.NewFromInt(1_000_000),
		MinWeeks:     1,
		MaxWeeks:     52,
		DefaultWeeks: 4,
	}
}

// ParsePrice parses a positive decimal from raw text.
// Accepts a leading "$", surrounding whitespace and a comma decimal separator.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	return ParsePriceWithOptions(raw, DefaultInputOptions())
}

// ParsePriceWithOptions parses a positive decimal bounded by opts.MaxPrice.
func ParsePriceWithOptions(raw string, opts InputOptions) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.Zero, false
	}
	if strings.Count(cleaned, ",") == 1 && !strings.Contains(cleaned, ".") {
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		logrus.WithField("input", raw).Debug("Rejected non-numeric price")
		return decimal.Zero, false
	}
	if !d.IsPositive() {
		return decimal.Zero, false
	}
	if opts.MaxPrice.IsPositive() && d.GreaterThan(opts.MaxPrice) {
		logrus.WithField("input", raw).Debug("Rejected out-of-range price")
		return decimal.Zero, false
	}
	return d, true
}

// ParsePosition parses strike and current price; ok is false unless both
// are valid positive numbers.
func ParsePosition(strike, currentPrice string) (model.Position, bool) {
	s, ok := ParsePrice(strike)
	if !ok {
		return model.Position{}, false
	}
	c, ok := ParsePrice(currentPrice)
	if !ok {
		return model.Position{}, false
	}
	return model.Position{Strike: s, CurrentPrice: c}, true
}

// ParsePremium parses an observed premium. Empty, malformed and negative
// input all yield zero, which the comparator marks invalid.
func ParsePremium(raw string) decimal.Decimal {
	d, ok := ParsePrice(raw)
	if !ok {
		return decimal.Zero
	}
	return d
}

// ParseWeeks parses a custom horizon, falling back to opts.DefaultWeeks when
// the text is not an integer and clamping to [MinWeeks, MaxWeeks].
func ParseWeeks(raw string, opts InputOptions) int {
	weeks, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || weeks == 0 {
		weeks = opts.DefaultWeeks
	}
	if weeks < opts.MinWeeks {
		weeks = opts.MinWeeks
	}
	if weeks > opts.MaxWeeks {
		weeks = opts.MaxWeeks
	}
	return weeks
}

// AdviseRequest is the raw input for one roll evaluation.
type AdviseRequest struct {
	Strike       string `json:"strike" validate:"max=32"`
	CurrentPrice string `json:"currentPrice" validate:"max=32"`
	Friday       *bool  `json:"friday,omitempty"`
}

// PremiumInputs carries the four premium fields of the comparison form.
type PremiumInputs struct {
	Week1 string `json:"week1" validate:"max=32"`
	Week2 string `json:"week2" validate:"max=32"`
	Week3 string `json:"week3" validate:"max=32"`
	WeekN string `json:"weekN" validate:"max=32"`
}

// CompareRequest is the raw input for a premium comparison.
type CompareRequest struct {
	Strike      string        `json:"strike" validate:"max=32"`
	Premiums    PremiumInputs `json:"premiums"`
	CustomWeeks string        `json:"customWeeks" validate:"max=8"`
}

var requestValidate = validator.New()

// ValidateRequest checks structural limits on a decoded request body.
// Numeric content is not judged here; see ParsePosition.
func ValidateRequest(req interface{}) error {
	if err := requestValidate.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return fmt.Errorf("invalid field %s: %s", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}
