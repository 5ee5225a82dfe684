package schema

import (
	"errors"
	"strconv"
	"strings"
)

// Scale is the number of decimal places used by a scaled integer.
// Example: Scale=8 means the integer value is scaled by 1e8.
type Scale int32

// Price is a scaled integer. The scale is defined per instrument.
type Price int64

// Quantity is a scaled integer. The scale is defined per instrument.
type Quantity int64

// Notional is a scaled integer. The scale is defined per instrument.
type Notional int64

// Fee is a scaled integer. The scale is defined per instrument.
type Fee int64

// AppendString renders the price as a decimal string into buf.
func (p Price) AppendString(scale Scale, buf []byte) []byte {
	return appendScaledInt(buf, int64(p), int(scale))
}

// AppendString renders the quantity as a decimal string into buf.
func (q Quantity) AppendString(scale Scale, buf []byte) []byte {
	return appendScaledInt(buf, int64(q), int(scale))
}

// AppendString renders the notional as a decimal string into buf.
func (n Notional) AppendString(scale Scale, buf []byte) []byte {
	return appendScaledInt(buf, int64(n), int(scale))
}

// AppendString renders the fee as a decimal string into buf.
func (f Fee) AppendString(scale Scale, buf []byte) []byte {
	return appendScaledInt(buf, int64(f), int(scale))
}

// ErrScaleOverflow reports a decimal string with more fractional digits
// than the target scale.
var ErrScaleOverflow = errors.New("too many fractional digits for scale")

// ParseScaled parses a decimal string into a scaled integer. Fractional
// digits beyond the scale are an error, not a rounding.
func ParseScaled(s string, scale Scale) (int64, error) {
	whole := s
	frac := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole = s[:idx]
		frac = s[idx+1:]
	}
	if len(frac) > int(scale) {
		frac = strings.TrimRight(frac, "0")
		if len(frac) > int(scale) {
			return 0, ErrScaleOverflow
		}
	}

	digits := whole + frac + strings.Repeat("0", int(scale)-len(frac))
	return strconv.ParseInt(digits, 10, 64)
}

func appendScaledInt(buf []byte, value int64, scale int) []byte {
	if scale <= 0 {
		return strconv.AppendInt(buf, value, 10)
	}

	neg := value < 0
	u := uint64(value)
	if neg {
		u = uint64(^value) + 1
	}

	var tmp [32]byte
	digits := strconv.AppendUint(tmp[:0], u, 10)

	if neg {
		buf = append(buf, '-')
	}

	if len(digits) <= scale {
		buf = append(buf, '0', '.')
		for i := 0; i < scale-len(digits); i++ {
			buf = append(buf, '0')
		}
		buf = append(buf, digits...)
		return buf
	}

	idx := len(digits) - scale
	buf = append(buf, digits[:idx]...)
	buf = append(buf, '.')
	buf = append(buf, digits[idx:]...)
	return buf
}
