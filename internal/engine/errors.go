package engine

// unavailableError signals a missing or failed runtime dependency (weights,
// tokenizer, or the runtime service itself) so callers can treat it as
// fatal at startup rather than a per-request failure.
type unavailableError struct{ msg string }

func (e unavailableError) Error() string { return e.msg }

// ErrUnavailable constructs an unavailableError.
func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

// IsUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}
