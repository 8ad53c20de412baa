// Package funcopt defines the functional option interface implemented
// by the option factories of the gridctl packages.
package funcopt

type (
	// O is the interface implemented by all functional options.
	O interface {
		Apply(t interface{}) error
	}

	// F wraps an option function into an O implementer.
	F func(t interface{}) error
)

func (f F) Apply(t interface{}) error {
	return f(t)
}

// Apply loops over the options and applies them to t.
func Apply(t interface{}, opts ...O) error {
	for _, opt := range opts {
		if err := opt.Apply(t); err != nil {
			return err
		}
	}
	return nil
}
