package domain

// ValidationError reports malformed or missing user input
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError reports a missing schedule or directory
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ExternalToolError reports a failure launching or talking to the
// terminal automation layer
type ExternalToolError struct {
	Message string
	Err     error
}

func (e *ExternalToolError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ExternalToolError) Unwrap() error { return e.Err }
