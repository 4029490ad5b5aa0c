package domain

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DefaultDecimals matches the EVM native token convention.
const DefaultDecimals uint8 = 18

// Amount is a token quantity held as an integer number of the token's smallest
// unit (wei) together with the token's decimals.
//
// Operations between two Amounts require equal decimals and fail with
// ErrPrecisionMismatch otherwise. Add, Sub, Mod and FloorDiv are exact integer
// operations on wei. Mul, Div and Pow, as well as every operation with a plain
// number, are evaluated on the float64 human value and re-quantized to the
// Amount's decimals. Use EtherExact for lossless arithmetic.
type Amount struct {
	wei      *big.Int
	decimals uint8
}

// Quantity is anything that can be expressed as an Amount at given decimals.
type Quantity interface {
	AtDecimals(decimals uint8) (Amount, error)
}

// Human is a human readable token value such as 0.5 ETH.
type Human float64

func (h Human) AtDecimals(decimals uint8) (Amount, error) {
	return NewAmount(float64(h), decimals)
}

// NewAmount quantizes a human value: wei = round(value * 10^decimals).
func NewAmount(value float64, decimals uint8) (Amount, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Amount{}, fmt.Errorf("%w: non-finite amount %v", ErrInvalidArgument, value)
	}
	return NewAmountFromDecimal(decimal.NewFromFloat(value), decimals), nil
}

func NewAmountFromWei(wei *big.Int, decimals uint8) Amount {
	value := new(big.Int)
	if wei != nil {
		value.Set(wei)
	}
	return Amount{wei: value, decimals: decimals}
}

func NewAmountFromDecimal(value decimal.Decimal, decimals uint8) Amount {
	wei := value.Shift(int32(decimals)).Round(0).BigInt()
	return Amount{wei: wei, decimals: decimals}
}

// ParseAmount reads a human decimal string such as "1.25".
func ParseAmount(raw string, decimals uint8) (Amount, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: amount %q: %v", ErrInvalidArgument, raw, err)
	}
	return NewAmountFromDecimal(value, decimals), nil
}

// AmountOf converts a loosely typed value. Integers, floats, decimals and
// strings are human values; *big.Int is taken as wei.
func AmountOf(value any, decimals uint8) (Amount, error) {
	switch v := value.(type) {
	case Amount:
		return v.AtDecimals(decimals)
	case Human:
		return v.AtDecimals(decimals)
	case int:
		return NewAmountFromDecimal(decimal.NewFromInt(int64(v)), decimals), nil
	case int64:
		return NewAmountFromDecimal(decimal.NewFromInt(v), decimals), nil
	case uint64:
		return NewAmountFromDecimal(decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0), decimals), nil
	case float32:
		return NewAmount(float64(v), decimals)
	case float64:
		return NewAmount(v, decimals)
	case *big.Int:
		if v == nil {
			return Amount{}, fmt.Errorf("%w: nil wei value", ErrUnsupportedOperand)
		}
		return NewAmountFromWei(v, decimals), nil
	case decimal.Decimal:
		return NewAmountFromDecimal(v, decimals), nil
	case string:
		return ParseAmount(v, decimals)
	default:
		return Amount{}, fmt.Errorf("%w: %T", ErrUnsupportedOperand, value)
	}
}

func (a Amount) AtDecimals(decimals uint8) (Amount, error) {
	if a.decimals != decimals {
		return Amount{}, mismatch("convert", a, Amount{decimals: decimals})
	}
	return a, nil
}

// Wei returns a copy of the raw integer value.
func (a Amount) Wei() *big.Int {
	return new(big.Int).Set(a.raw())
}

func (a Amount) Decimals() uint8 {
	return a.decimals
}

// Ether is the lossy float64 human value.
func (a Amount) Ether() float64 {
	return a.EtherExact().InexactFloat64()
}

// EtherExact is the lossless human value.
func (a Amount) EtherExact() decimal.Decimal {
	return decimal.NewFromBigInt(a.raw(), -int32(a.decimals))
}

func (a Amount) String() string {
	return a.EtherExact().String()
}

func (a Amount) Sign() int {
	return a.raw().Sign()
}

func (a Amount) IsZero() bool {
	return a.raw().Sign() == 0
}

// Uint256 returns the wei value for ABI encoding.
func (a Amount) Uint256() (*uint256.Int, error) {
	if a.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount %s", ErrInvalidArgument, a)
	}
	value, overflow := uint256.FromBig(a.raw())
	if overflow {
		return nil, fmt.Errorf("%w: amount %s overflows uint256", ErrInvalidArgument, a)
	}
	return value, nil
}

func (a Amount) Add(b Amount) (Amount, error) {
	if err := a.sameDecimals("add", b); err != nil {
		return Amount{}, err
	}
	return a.withWei(new(big.Int).Add(a.raw(), b.raw())), nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	if err := a.sameDecimals("subtract", b); err != nil {
		return Amount{}, err
	}
	return a.withWei(new(big.Int).Sub(a.raw(), b.raw())), nil
}

func (a Amount) Mul(b Amount) (Amount, error) {
	if err := a.sameDecimals("multiply", b); err != nil {
		return Amount{}, err
	}
	return NewAmount(a.Ether()*b.Ether(), a.decimals)
}

func (a Amount) Div(b Amount) (Amount, error) {
	if err := a.sameDecimals("divide", b); err != nil {
		return Amount{}, err
	}
	return a.DivNumber(b.Ether())
}

func (a Amount) Mod(b Amount) (Amount, error) {
	if err := a.sameDecimals("mod", b); err != nil {
		return Amount{}, err
	}
	if b.IsZero() {
		return Amount{}, ErrDivisionByZero
	}
	return a.withWei(floorMod(a.raw(), b.raw())), nil
}

func (a Amount) Pow(b Amount) (Amount, error) {
	if err := a.sameDecimals("pow", b); err != nil {
		return Amount{}, err
	}
	return a.PowNumber(b.Ether())
}

// FloorDiv divides wei by wei rounding toward negative infinity; the quotient
// keeps the operands' decimals.
func (a Amount) FloorDiv(b Amount) (Amount, error) {
	if err := a.sameDecimals("floordiv", b); err != nil {
		return Amount{}, err
	}
	if b.IsZero() {
		return Amount{}, ErrDivisionByZero
	}
	return a.withWei(floorDiv(a.raw(), b.raw())), nil
}

func (a Amount) AddNumber(x float64) (Amount, error) {
	return NewAmount(a.Ether()+x, a.decimals)
}

func (a Amount) SubNumber(x float64) (Amount, error) {
	return NewAmount(a.Ether()-x, a.decimals)
}

func (a Amount) MulNumber(x float64) (Amount, error) {
	return NewAmount(a.Ether()*x, a.decimals)
}

func (a Amount) DivNumber(x float64) (Amount, error) {
	if x == 0 {
		return Amount{}, ErrDivisionByZero
	}
	return NewAmount(a.Ether()/x, a.decimals)
}

func (a Amount) ModNumber(x float64) (Amount, error) {
	if x == 0 {
		return Amount{}, ErrDivisionByZero
	}
	return NewAmount(floatMod(a.Ether(), x), a.decimals)
}

func (a Amount) PowNumber(x float64) (Amount, error) {
	return NewAmount(math.Pow(a.Ether(), x), a.decimals)
}

func (a Amount) FloorDivNumber(x float64) (Amount, error) {
	if x == 0 {
		return Amount{}, ErrDivisionByZero
	}
	return NewAmount(math.Floor(a.Ether()/x), a.decimals)
}

// RSubNumber computes x - a.
func (a Amount) RSubNumber(x float64) (Amount, error) {
	return NewAmount(x-a.Ether(), a.decimals)
}

// RDivNumber computes x / a.
func (a Amount) RDivNumber(x float64) (Amount, error) {
	if a.IsZero() {
		return Amount{}, ErrDivisionByZero
	}
	return NewAmount(x/a.Ether(), a.decimals)
}

// RModNumber computes x mod a.
func (a Amount) RModNumber(x float64) (Amount, error) {
	if a.IsZero() {
		return Amount{}, ErrDivisionByZero
	}
	return NewAmount(floatMod(x, a.Ether()), a.decimals)
}

// RPowNumber computes x ** a.
func (a Amount) RPowNumber(x float64) (Amount, error) {
	return NewAmount(math.Pow(x, a.Ether()), a.decimals)
}

// RFloorDivNumber computes x // a.
func (a Amount) RFloorDivNumber(x float64) (Amount, error) {
	if a.IsZero() {
		return Amount{}, ErrDivisionByZero
	}
	return NewAmount(math.Floor(x/a.Ether()), a.decimals)
}

func (a Amount) Cmp(b Amount) (int, error) {
	if err := a.sameDecimals("compare", b); err != nil {
		return 0, err
	}
	return a.raw().Cmp(b.raw()), nil
}

func (a Amount) Equal(b Amount) (bool, error) {
	c, err := a.Cmp(b)
	return c == 0, err
}

func (a Amount) Less(b Amount) (bool, error) {
	c, err := a.Cmp(b)
	return c < 0, err
}

func (a Amount) LessOrEqual(b Amount) (bool, error) {
	c, err := a.Cmp(b)
	return c <= 0, err
}

func (a Amount) Greater(b Amount) (bool, error) {
	c, err := a.Cmp(b)
	return c > 0, err
}

func (a Amount) GreaterOrEqual(b Amount) (bool, error) {
	c, err := a.Cmp(b)
	return c >= 0, err
}

// CmpNumber compares the human value with x.
func (a Amount) CmpNumber(x float64) int {
	value := a.Ether()
	switch {
	case value < x:
		return -1
	case value > x:
		return 1
	default:
		return 0
	}
}

func (a Amount) raw() *big.Int {
	if a.wei == nil {
		return new(big.Int)
	}
	return a.wei
}

func (a Amount) withWei(wei *big.Int) Amount {
	return Amount{wei: wei, decimals: a.decimals}
}

func (a Amount) sameDecimals(op string, b Amount) error {
	if a.decimals != b.decimals {
		return mismatch(op, a, b)
	}
	return nil
}

func mismatch(op string, a, b Amount) error {
	return fmt.Errorf("%w: %s %d and %d decimals", ErrPrecisionMismatch, op, a.decimals, b.decimals)
}

func floorDiv(x, y *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(x, y, new(big.Int))
	if r.Sign() != 0 && (r.Sign() < 0) != (y.Sign() < 0) {
		q.Sub(q, big.NewInt(1))
	}
	return q
}

// floorMod takes the sign of the divisor.
func floorMod(x, y *big.Int) *big.Int {
	r := new(big.Int).Rem(x, y)
	if r.Sign() != 0 && (r.Sign() < 0) != (y.Sign() < 0) {
		r.Add(r, y)
	}
	return r
}

func floatMod(x, y float64) float64 {
	r := math.Mod(x, y)
	if r != 0 && (r < 0) != (y < 0) {
		r += y
	}
	return r
}
