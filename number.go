package jsongraph

import (
	"math"
	"math/big"
	"strconv"

	"gopkg.in/inf.v0"
)

// NumberKind classifies a numeric literal
type NumberKind uint8

const (
	NumberInt     NumberKind = iota // fits in 32 bits, materialized as int
	NumberInt64                     // fits in 64 bits
	NumberFloat                     // float64
	NumberDecimal                   // *inf.Dec
)

func (k NumberKind) String() string {
	switch k {
	case NumberInt:
		return "int"
	case NumberInt64:
		return "int64"
	case NumberFloat:
		return "float64"
	case NumberDecimal:
		return "decimal"
	}
	return "unknown"
}

// Span locates one part of a literal, relative to NumberLiteral.Text
type Span struct {
	Start int
	Len   int
}

// NumberLiteral is a numeric literal split into its parts
type NumberLiteral struct {
	Text        string
	Negative    bool
	Whole       Span
	Fraction    Span
	Exponent    Span
	ExpNegative bool
	Symbol      bool // NaN, Infinity or -Infinity
	Kind        NumberKind
}

// Number keeps a numeric literal exactly as it appeared in the input
type Number string

// String returns the literal
func (n Number) String() string { return string(n) }

// Int64 returns the number as an int64
func (n Number) Int64() (int64, error) { return strconv.ParseInt(string(n), 10, 64) }

// Float64 returns the number as a float64
func (n Number) Float64() (float64, error) { return strconv.ParseFloat(string(n), 64) }

// Decimal returns the number as an arbitrary precision decimal
func (n Number) Decimal() (*inf.Dec, bool) { return new(inf.Dec).SetString(string(n)) }

const (
	maxFastMantissaDigits = 15
	maxFastExponent       = 22
	maxFloatDigits        = 17
	maxDecimalExponent    = 1 << 20
)

var (
	float64pow10 [maxFastExponent + 1]float64
	uint64pow10  [20]uint64
)

func init() {
	float64pow10[0] = 1
	for i := 1; i < len(float64pow10); i++ {
		float64pow10[i] = float64pow10[i-1] * 10
	}
	uint64pow10[0] = 1
	for i := 1; i < len(uint64pow10); i++ {
		uint64pow10[i] = uint64pow10[i-1] * 10
	}
}

// numberSentinels maps canonical spellings of extreme values to the exact value
var numberSentinels = map[string]any{
	"NaN":                      math.NaN(),
	"Infinity":                 math.Inf(1),
	"-Infinity":                math.Inf(-1),
	"1.7976931348623157E+308":  math.MaxFloat64,
	"1.7976931348623157e+308":  math.MaxFloat64,
	"-1.7976931348623157E+308": -math.MaxFloat64,
	"-1.7976931348623157e+308": -math.MaxFloat64,
	"4.9406564584124654E-324":  math.SmallestNonzeroFloat64,
	"4.9406564584124654e-324":  math.SmallestNonzeroFloat64,
	"4.94065645841247E-324":    math.SmallestNonzeroFloat64,
	"4.94065645841247e-324":    math.SmallestNonzeroFloat64,
	"5E-324":                   math.SmallestNonzeroFloat64,
	"5e-324":                   math.SmallestNonzeroFloat64,
	"3.4028234663852886E+38":   float64(math.MaxFloat32),
	"3.4028234663852886e+38":   float64(math.MaxFloat32),
	"2147483647":               int(math.MaxInt32),
	"-2147483648":              int(math.MinInt32),
	"9223372036854775807":      int64(math.MaxInt64),
	"-9223372036854775808":     int64(math.MinInt64),
}

// LexNumber lexes text that must consist of exactly one numeric literal
func LexNumber(text string) (NumberLiteral, error) {
	lit, end, err := lexNumber(text, 0)
	if err != nil {
		return NumberLiteral{}, err
	}
	if end != len(text) {
		return NumberLiteral{}, newSyntaxError(text, end, "trailing characters after number", ErrInvalidNumber)
	}
	return lit, nil
}

// ParseNumber lexes and converts one numeric literal
func ParseNumber(text string, mode FloatParseHandling) (any, error) {
	lit, err := LexNumber(text)
	if err != nil {
		return nil, err
	}
	return lit.Value(mode)
}

// lexNumber consumes the literal starting at pos and returns the offset after it.
// Whatever follows the literal is left for the caller to judge.
func lexNumber(data string, pos int) (NumberLiteral, int, error) {
	start, n := pos, len(data)
	var lit NumberLiteral

	if pos < n && data[pos] == '-' {
		lit.Negative = true
		pos++
	}

	if pos < n && (data[pos] == 'N' || data[pos] == 'I') {
		switch {
		case !lit.Negative && hasPrefixAt(data, pos, "NaN"):
			pos += 3
		case hasPrefixAt(data, pos, "Infinity"):
			pos += 8
		default:
			return lit, pos, newSyntaxError(data, pos, "invalid numeric symbol", ErrInvalidNumber)
		}
		lit.Text = data[start:pos]
		lit.Symbol = true
		lit.Kind = NumberFloat
		return lit, pos, nil
	}

	wholeStart := pos
	pos = skipDigits(data, pos)
	lit.Whole = Span{Start: wholeStart - start, Len: pos - wholeStart}
	if lit.Whole.Len > 1 && data[wholeStart] == '0' {
		return lit, wholeStart, newSyntaxError(data, wholeStart, "leading zero in number", ErrInvalidNumber)
	}

	if pos < n && data[pos] == '.' {
		pos++
		fracStart := pos
		pos = skipDigits(data, pos)
		if pos == fracStart {
			return lit, pos, newSyntaxError(data, pos, "missing digits after decimal point", ErrInvalidNumber)
		}
		lit.Fraction = Span{Start: fracStart - start, Len: pos - fracStart}
	}

	if lit.Whole.Len == 0 && lit.Fraction.Len == 0 {
		return lit, pos, newSyntaxError(data, pos, "number has no digits", ErrInvalidNumber)
	}

	if pos < n && (data[pos] == 'e' || data[pos] == 'E') {
		pos++
		if pos < n && (data[pos] == '+' || data[pos] == '-') {
			lit.ExpNegative = data[pos] == '-'
			pos++
		}
		expStart := pos
		pos = skipDigits(data, pos)
		if pos == expStart {
			return lit, pos, newSyntaxError(data, pos, "missing digits in exponent", ErrInvalidNumber)
		}
		lit.Exponent = Span{Start: expStart - start, Len: pos - expStart}
	}

	lit.Text = data[start:pos]
	lit.Kind = lit.Classify(FloatParseFloat64)
	return lit, pos, nil
}

// IsInteger reports whether the literal has neither fraction nor exponent
func (lit NumberLiteral) IsInteger() bool {
	return !lit.Symbol && lit.Fraction.Len == 0 && lit.Exponent.Len == 0
}

// Classify picks the numeric kind under the given float policy
func (lit NumberLiteral) Classify(mode FloatParseHandling) NumberKind {
	if lit.Symbol {
		return NumberFloat
	}
	if lit.IsInteger() {
		// integers have no negative zero
		if lit.Negative && lit.part(lit.Whole) == "0" {
			return NumberFloat
		}
		switch digits := lit.Whole.Len; {
		case digits <= 9:
			return NumberInt
		case digits == 10:
			if v, ok := lit.uint64Whole(); ok && fitsInt32(v, lit.Negative) {
				return NumberInt
			}
			return NumberInt64
		case digits <= 18:
			return NumberInt64
		case digits == 19:
			if v, ok := lit.uint64Whole(); ok && fitsInt64(v, lit.Negative) {
				return NumberInt64
			}
		}
		if mode == FloatParseFloat64 {
			return NumberFloat
		}
		return NumberDecimal
	}

	switch mode {
	case FloatParseDecimal:
		return NumberDecimal
	case FloatParseAuto:
		if lit.significantDigits() > maxFloatDigits {
			return NumberDecimal
		}
		if f, err := strconv.ParseFloat(lit.Text, 64); err != nil && math.IsInf(f, 0) {
			return NumberDecimal
		}
	}
	return NumberFloat
}

// Value converts the literal to int, int64, float64 or *inf.Dec
func (lit NumberLiteral) Value(mode FloatParseHandling) (any, error) {
	kind := lit.Classify(mode)
	if kind != NumberDecimal {
		if v, ok := numberSentinels[lit.Text]; ok {
			return v, nil
		}
	}

	switch kind {
	case NumberInt:
		v, _ := lit.uint64Whole()
		if lit.Negative {
			return -int(v), nil
		}
		return int(v), nil
	case NumberInt64:
		v, _ := lit.uint64Whole()
		if lit.Negative {
			return -int64(v), nil
		}
		return int64(v), nil
	case NumberDecimal:
		return lit.Decimal()
	default:
		return lit.Float64()
	}
}

// Float64 converts the literal to the nearest float64
func (lit NumberLiteral) Float64() (float64, error) {
	if v, ok := numberSentinels[lit.Text]; ok {
		switch x := v.(type) {
		case float64:
			return x, nil
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		}
	}
	if f, ok := lit.fastFloat(); ok {
		return f, nil
	}
	f, err := strconv.ParseFloat(lit.Text, 64)
	if err != nil && math.IsInf(f, 0) {
		return 0, &CodecError{Op: "parse_number", Offset: -1, Message: "number " + lit.Text + " overflows float64", Err: ErrInvalidNumber}
	}
	return f, nil
}

// Decimal converts the literal exactly
func (lit NumberLiteral) Decimal() (*inf.Dec, error) {
	if lit.Symbol {
		return nil, &CodecError{Op: "parse_number", Offset: -1, Message: lit.Text + " has no decimal form", Err: ErrInvalidNumber}
	}
	digits := lit.part(lit.Whole) + lit.part(lit.Fraction)
	unscaled, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, &CodecError{Op: "parse_number", Offset: -1, Message: "invalid digits " + digits, Err: ErrInvalidNumber}
	}
	if lit.Negative {
		unscaled.Neg(unscaled)
	}
	exp, ok := lit.exponent()
	if !ok || exp > maxDecimalExponent || exp < -maxDecimalExponent {
		return nil, &CodecError{Op: "parse_number", Offset: -1, Message: "exponent out of range in " + lit.Text, Err: ErrInvalidNumber}
	}
	return inf.NewDecBig(unscaled, inf.Scale(lit.Fraction.Len-exp)), nil
}

// fastFloat handles literals whose mantissa and power of ten are both
// exactly representable, where one multiplication or division is exact.
func (lit NumberLiteral) fastFloat() (float64, bool) {
	var mantissa uint64
	digits := 0
	for _, part := range [2]string{lit.part(lit.Whole), lit.part(lit.Fraction)} {
		for i := 0; i < len(part); i++ {
			d := uint64(part[i] - '0')
			if digits == 0 && d == 0 {
				continue
			}
			digits++
			if digits > maxFastMantissaDigits {
				return 0, false
			}
			mantissa = mantissa*10 + d
		}
	}
	exp, ok := lit.exponent()
	if !ok {
		return 0, false
	}
	exp -= lit.Fraction.Len
	// trailing zeros of the fraction were folded into the mantissa
	if exp < -maxFastExponent || exp > maxFastExponent {
		return 0, false
	}

	f := float64(mantissa)
	if exp < 0 {
		f /= float64pow10[-exp]
	} else {
		f *= float64pow10[exp]
	}
	if lit.Negative {
		f = -f
	}
	return f, true
}

func (lit NumberLiteral) part(s Span) string {
	return lit.Text[s.Start : s.Start+s.Len]
}

// exponent returns the signed exponent value; false when it does not fit
func (lit NumberLiteral) exponent() (int, bool) {
	if lit.Exponent.Len == 0 {
		return 0, true
	}
	if lit.Exponent.Len > 9 {
		return 0, false
	}
	exp := 0
	for _, c := range []byte(lit.part(lit.Exponent)) {
		exp = exp*10 + int(c-'0')
	}
	if lit.ExpNegative {
		exp = -exp
	}
	return exp, true
}

// uint64Whole accumulates the whole part; false on overflow
func (lit NumberLiteral) uint64Whole() (uint64, bool) {
	whole := lit.part(lit.Whole)
	if len(whole) > len(uint64pow10) {
		return 0, false
	}
	var v uint64
	for i := 0; i < len(whole); i++ {
		d := uint64(whole[i] - '0')
		if v > (math.MaxUint64-d)/10 {
			return 0, false
		}
		v = v*10 + d
	}
	return v, true
}

// significantDigits counts mantissa digits without leading or trailing zeros
func (lit NumberLiteral) significantDigits() int {
	digits := lit.part(lit.Whole) + lit.part(lit.Fraction)
	first, last := 0, len(digits)
	for first < last && digits[first] == '0' {
		first++
	}
	for last > first && digits[last-1] == '0' {
		last--
	}
	return last - first
}

func fitsInt32(v uint64, negative bool) bool {
	if negative {
		return v <= -math.MinInt32
	}
	return v <= math.MaxInt32
}

func fitsInt64(v uint64, negative bool) bool {
	if negative {
		return v <= 1<<63
	}
	return v <= math.MaxInt64
}

func skipDigits(data string, pos int) int {
	for pos < len(data) && data[pos] >= '0' && data[pos] <= '9' {
		pos++
	}
	return pos
}

func hasPrefixAt(data string, pos int, prefix string) bool {
	return len(data)-pos >= len(prefix) && data[pos:pos+len(prefix)] == prefix
}
