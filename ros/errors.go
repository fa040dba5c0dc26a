package ros

import (
	"errors"
	"fmt"
)

const (
	AlreadyConnectedError = iota

	CommandError

	ConnectionError

	ConnectionRefusedError

	DisconnectedError

	FatalError

	HandlerError

	ProtocolError

	TimeoutError

	UnknownError
)

// Error is a typed client failure. Code is one of the error constants above;
// Message carries detail, including the device-supplied text for FatalError.
type Error struct {
	Code    int
	Message string
}

func (err *Error) Error() string {
	if err.Message == "" {
		return errorName(err.Code)
	}
	return errorName(err.Code) + ": " + err.Message
}

func errorName(errorCode int) string {
	switch errorCode {
	case AlreadyConnectedError:
		return "AlreadyConnectedError"
	case CommandError:
		return "CommandError"
	case ConnectionError:
		return "ConnectionError"
	case ConnectionRefusedError:
		return "ConnectionRefusedError"
	case DisconnectedError:
		return "DisconnectedError"
	case FatalError:
		return "FatalError"
	case HandlerError:
		return "HandlerError"
	case ProtocolError:
		return "ProtocolError"
	case TimeoutError:
		return "TimeoutError"
	default:
		return "UnknownError"
	}
}

// NewError builds a typed error from a code and optional detail.
func NewError(errorCode int, message ...interface{}) error {
	if len(message) > 0 {
		return &Error{Code: errorCode, Message: fmt.Sprintf("%v", message[0])}
	}
	return &Error{Code: errorCode}
}

// HasErrorCode reports whether err is (or wraps) a client Error with the
// given code.
func HasErrorCode(err error, errorCode int) bool {
	var typed *Error
	return errors.As(err, &typed) && typed.Code == errorCode
}
