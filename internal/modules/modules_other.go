//go:build !windows

package modules

type unsupported struct{}

// NewEnumerator returns an Enumerator that always fails with ErrUnsupported.
func NewEnumerator() Enumerator {
	return unsupported{}
}

// NewResolver returns a Resolver that always fails with ErrUnsupported.
func NewResolver() Resolver {
	return unsupported{}
}

func (unsupported) Modules() ([]Module, error) {
	return nil, ErrUnsupported
}

func (unsupported) Resolve(string) (Handle, error) {
	return Handle{}, ErrUnsupported
}

// Supported reports whether live enumeration works on this platform.
const Supported = false
