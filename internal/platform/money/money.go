// Package money provides cent-level numeric coercion and a presence-aware
// cents value used by the amount precedence chain.
package money

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// CoerceOptions controls how loosely typed amounts are normalised.
type CoerceOptions struct {
	// AllowNegative keeps negative results instead of clamping them to zero.
	AllowNegative bool
	// EmptyStringIsZero treats "" as an explicit zero rather than an absent value.
	EmptyStringIsZero bool
}

// ToCents normalises an arbitrary value into integer cents. Strings are
// trimmed and parsed, fractional cents truncate toward zero, and anything
// non-finite or unparsable yields 0.
func ToCents(value any, opts CoerceOptions) int64 {
	cents, ok := coerce(value, opts)
	if !ok {
		return 0
	}
	return cents
}

// ToCentsStrict behaves like ToCents but additionally reports whether the
// input carried a usable amount at all. Callers use the ok result to tell
// "caller supplied 0" apart from "caller supplied nothing".
func ToCentsStrict(value any, opts CoerceOptions) (int64, bool) {
	return coerce(value, opts)
}

func coerce(value any, opts CoerceOptions) (int64, bool) {
	var f float64
	switch v := value.(type) {
	case nil:
		return 0, false
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case float32:
		f = float64(v)
	case float64:
		f = v
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			if opts.EmptyStringIsZero {
				return 0, true
			}
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	cents := int64(math.Trunc(f))
	if cents < 0 && !opts.AllowNegative {
		cents = 0
	}
	return cents, true
}

// Cents is a tri-state cents value: absent, explicit zero, or explicit n.
// The distinction is load-bearing: an explicit zero from a higher-precedence
// source must beat a positive value from a lower one.
type Cents struct {
	value int64
	set   bool
}

// Explicit wraps an explicitly supplied amount.
func Explicit(value int64) Cents {
	return Cents{value: value, set: true}
}

// None is the absent value.
func None() Cents {
	return Cents{}
}

// FromPointer converts an optional document or payload field.
func FromPointer(p *int64) Cents {
	if p == nil {
		return None()
	}
	return Explicit(*p)
}

// Set reports whether a value is present.
func (c Cents) Set() bool { return c.set }

// Value returns the amount, zero when absent.
func (c Cents) Value() int64 { return c.value }

// Get returns the amount and whether it is present.
func (c Cents) Get() (int64, bool) { return c.value, c.set }

// Positive reports whether a strictly positive amount is present.
func (c Cents) Positive() bool { return c.set && c.value > 0 }

// Or returns c when present, otherwise next.
func (c Cents) Or(next Cents) Cents {
	if c.set {
		return c
	}
	return next
}

// OrElse resolves to the present amount or the fallback.
func (c Cents) OrElse(fallback int64) int64 {
	if c.set {
		return c.value
	}
	return fallback
}

// Pointer returns the amount as an optional field, nil when absent.
func (c Cents) Pointer() *int64 {
	if !c.set {
		return nil
	}
	v := c.value
	return &v
}
