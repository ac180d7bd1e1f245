// Package moneypkg provides parsing and validation of money amounts.
package moneypkg

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Scale is the number of fraction digits stored for an amount.
const Scale = 2

var (
	// ErrNotANumber indicates that the amount is not a decimal number.
	ErrNotANumber = errors.New("amount is not a number")
	// ErrNotPositive indicates that the amount is zero or negative.
	ErrNotPositive = errors.New("amount must be positive")
	// ErrNegative indicates a balance below zero.
	ErrNegative = errors.New("balance must not be negative")
	// ErrTooPrecise indicates more fraction digits than Scale.
	ErrTooPrecise = errors.New("amount has too many decimal places")
)

// ParseAmount parses a positive amount with at most Scale fraction digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, ErrNotANumber
	}

	if !d.IsPositive() {
		return decimal.Decimal{}, ErrNotPositive
	}

	if !d.Equal(d.Truncate(Scale)) {
		return decimal.Decimal{}, ErrTooPrecise
	}

	return d, nil
}

// ParseBalance parses a non-negative opening balance with at most Scale
// fraction digits.
func ParseBalance(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, ErrNotANumber
	}

	if d.IsNegative() {
		return decimal.Decimal{}, ErrNegative
	}

	if !d.Equal(d.Truncate(Scale)) {
		return decimal.Decimal{}, ErrTooPrecise
	}

	return d, nil
}

// ValidAmount validates that a string field holds a positive amount.
var ValidAmount validator.Func = func(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		_, err := ParseAmount(s)
		return err == nil
	}

	return false
}

// ValidBalance validates that a string field holds a non-negative amount.
var ValidBalance validator.Func = func(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		_, err := ParseBalance(s)
		return err == nil
	}

	return false
}
