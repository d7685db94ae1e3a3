package dispatch

// malformedError signals a message body that failed envelope validation.
// Malformed messages are dropped after logging; there is nowhere to reply.
type malformedError struct{ msg string }

func (e malformedError) Error() string { return e.msg }

func errMalformed(msg string) error { return malformedError{msg: msg} }

// IsMalformed reports whether err indicates a bad message body.
func IsMalformed(err error) bool {
	_, ok := err.(malformedError)
	return ok
}
