package kernel

// Error describes a kernel error. Kernel errors are declared as package-level
// variables pointing to an Error so that callers can compare them by identity
// and so that reporting a failure never needs to allocate while a subsystem
// (for instance the heap) is in an inconsistent state.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// String returns the error message prefixed by the name of the module that
// reported it.
func (e *Error) String() string {
	return "[" + e.Module + "] " + e.Message
}
