package filter

import (
	"errors"
)

// NotAvailable marks a requested value that no method could determine.
const NotAvailable = "N/A"

// ErrNotFound is returned by a derivation method that has no answer. Derive
// treats it as a signal to try the next method.
var ErrNotFound = errors.New("value not found")

// Method is one way of deriving a value, in order of preference.
type Method struct {
	Name string
	Fn   func() (string, error)
}

// Derived is the outcome of Derive.
type Derived struct {
	Value string
	// Method names the method that supplied Value; empty when none did.
	Method string
}

// Derive tries methods in order. ErrNotFound or an empty value falls through
// to the next method; any other error is returned. When every method is
// exhausted and the value was requested, Value is NotAvailable.
func Derive(requested bool, methods ...Method) (Derived, error) {
	for _, m := range methods {
		v, err := m.Fn()
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return Derived{}, err
		}
		if v != "" {
			return Derived{Value: v, Method: m.Name}, nil
		}
	}
	if requested {
		return Derived{Value: NotAvailable}, nil
	}
	return Derived{}, nil
}
