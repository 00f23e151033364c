package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseUnits converts a human-readable decimal amount string (e.g. "1.5")
// into base units for an asset with the given number of fractional decimals.
// The guardian's two assets use different granularities (6 for the stable
// asset, 18 for the collateral asset), and a scaling mistake at this
// boundary moves funds by factors of 10^12, so parsing is done on the
// decimal string representation. Floating point is never involved.
//
// Amounts with more fractional digits than the asset supports are rejected
// rather than silently truncated.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, fmt.Errorf("domain: empty amount: %w", ErrZeroAmount)
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		return nil, fmt.Errorf("domain: negative amount %q: %w", amount, ErrZeroAmount)
	}
	s = strings.TrimPrefix(s, "+")

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	// Inputs like "." or a bare sign carry no digits at all and must not
	// parse as zero.
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("domain: amount %q has no digits", amount)
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("domain: amount %q has %d fractional digits, asset supports %d", amount, len(frac), decimals)
	}
	// Right-pad the fractional part to the full decimal width.
	frac += strings.Repeat("0", int(decimals)-len(frac))

	n, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("domain: malformed amount %q", amount)
	}
	return n, nil
}

// FormatUnits renders base units as a human-readable decimal string with
// trailing zeros trimmed ("1.500000" becomes "1.5", "3000000" at 6 decimals
// becomes "3").
func FormatUnits(n *big.Int, decimals uint8) string {
	if n == nil {
		return "0"
	}
	s := n.String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= int(decimals) {
		s = strings.Repeat("0", int(decimals)-len(s)+1) + s
	}
	cut := len(s) - int(decimals)
	whole, frac := s[:cut], s[cut:]
	frac = strings.TrimRight(frac, "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
