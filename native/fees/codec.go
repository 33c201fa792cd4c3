package fees

import (
	"fmt"
	"strconv"
	"strings"
)

// UnmarshalText parses "mul/div" so fractions can be written as plain strings
// in TOML and YAML configuration files.
func (f *Fraction) UnmarshalText(text []byte) error {
	parsed, err := ParseFraction(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// MarshalText renders the fraction as "mul/div".
func (f Fraction) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// ParseFraction parses and validates "mul/div".
func ParseFraction(raw string) (Fraction, error) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) != 2 {
		return Fraction{}, fmt.Errorf("fees: fraction %q must be mul/div", raw)
	}
	mul, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return Fraction{}, fmt.Errorf("fees: fraction numerator: %w", err)
	}
	div, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return Fraction{}, fmt.Errorf("fees: fraction divisor: %w", err)
	}
	f := Fraction{Mul: mul, Div: div}
	if err := f.Validate(); err != nil {
		return Fraction{}, err
	}
	return f, nil
}
