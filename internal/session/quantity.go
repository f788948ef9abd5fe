package session

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	DefaultMin  = decimal.Zero
	DefaultMax  = decimal.NewFromInt(9999)
	DefaultStep = decimal.NewFromInt(1)
)

const (
	// DefaultPlaces is the precision direct entries are rounded to.
	DefaultPlaces = 2
	// maxDirectInput bounds the digits a direct entry can carry, which keeps
	// every comparison on it cheap.
	maxDirectInput = 32
)

// QuantityControl is a bounded counter. The zero value is not usable; build
// one with NewQuantityControl or NewRoomCountControl.
//
// While busy (between Begin and Ack) every mutation is rejected so rapid
// clicks cannot stack on an unacknowledged change.
type QuantityControl struct {
	Min    decimal.Decimal
	Max    decimal.Decimal
	Step   decimal.Decimal
	Places int32

	quantity decimal.Decimal
	busy     bool
}

// NewQuantityControl returns the integer-step control used for consumption.
func NewQuantityControl() QuantityControl {
	return QuantityControl{Min: DefaultMin, Max: DefaultMax, Step: DefaultStep, Places: DefaultPlaces, quantity: DefaultMin}
}

// NewRoomCountControl returns a control stepping by 0.5.
func NewRoomCountControl() QuantityControl {
	q := NewQuantityControl()
	q.Step = decimal.New(5, -1)
	q.Places = 1
	return q
}

func (q *QuantityControl) Value() decimal.Decimal { return q.quantity }

func (q *QuantityControl) Busy() bool { return q.busy }

func (q *QuantityControl) CanIncrement() bool {
	return !q.busy && q.quantity.LessThan(q.Max)
}

func (q *QuantityControl) CanDecrement() bool {
	return !q.busy && q.quantity.GreaterThan(q.Min)
}

// Increment adds one step, capped at Max. It reports whether the value changed.
func (q *QuantityControl) Increment() bool {
	if !q.CanIncrement() {
		return false
	}
	return q.set(decimal.Min(q.quantity.Add(q.Step), q.Max))
}

// Decrement removes one step, floored at Min.
func (q *QuantityControl) Decrement() bool {
	if !q.CanDecrement() {
		return false
	}
	return q.set(decimal.Max(q.quantity.Sub(q.Step), q.Min))
}

// SetDirect parses a plain decimal, rounds it to Places and clamps it to
// [Min, Max]. Non-numeric input, exponent notation and over-long input are
// ignored and leave the value untouched.
func (q *QuantityControl) SetDirect(input string) bool {
	if q.busy {
		return false
	}
	input = strings.TrimSpace(input)
	if input == "" || len(input) > maxDirectInput || strings.ContainsAny(input, "eE") {
		return false
	}
	v, err := decimal.NewFromString(input)
	if err != nil {
		return false
	}
	return q.set(q.clamp(v.Round(q.Places)))
}

// Begin marks a mutation in flight. It returns false when one already is.
func (q *QuantityControl) Begin() bool {
	if q.busy {
		return false
	}
	q.busy = true
	return true
}

// Ack acknowledges the in-flight mutation and re-enables the control.
func (q *QuantityControl) Ack() { q.busy = false }

// restore puts back a previous value regardless of the busy flag.
func (q *QuantityControl) restore(v decimal.Decimal) { q.quantity = q.clamp(v) }

func (q *QuantityControl) clamp(v decimal.Decimal) decimal.Decimal {
	return decimal.Min(decimal.Max(v, q.Min), q.Max)
}

func (q *QuantityControl) set(v decimal.Decimal) bool {
	if v.Equal(q.quantity) {
		return false
	}
	q.quantity = v
	return true
}
