package fault

// ErrorPrefix marks a failed result when rendered as text
const ErrorPrefix = "Error: "

// Result is the uniform success/failure shape returned by public operations
type Result struct {
	OK      bool
	Message string
	Err     error
}

// OK builds a successful result
func OK(message string) Result {
	return Result{OK: true, Message: message}
}

// Fail builds a failed result from an error
func Fail(err error) Result {
	return Result{OK: false, Message: MessageOf(err), Err: err}
}

// String renders the result for a remote caller
func (r Result) String() string {
	if r.OK {
		return r.Message
	}
	return ErrorPrefix + r.Message
}
