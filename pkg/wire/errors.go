package wire

import "fmt"

// ErrorCode identifies a protocol or engine failure.
// The numeric values are shared with the other TFP bindings.
type ErrorCode uint8

const (
	// CodeAlreadyConnected indicates connect was called on an open connection.
	CodeAlreadyConnected ErrorCode = 11

	// CodeNotConnected indicates an operation that needs an open connection.
	CodeNotConnected ErrorCode = 12

	// CodeConnectFailed indicates the TCP connection could not be established.
	CodeConnectFailed ErrorCode = 13

	// CodeInvalidFunctionID indicates an unknown function ID for the device.
	CodeInvalidFunctionID ErrorCode = 21

	// CodeTimeout indicates no response arrived within the connection timeout.
	CodeTimeout ErrorCode = 31

	// CodeInvalidParameter indicates the device rejected a parameter.
	CodeInvalidParameter ErrorCode = 41

	// CodeFunctionNotSupported indicates the device does not implement the function.
	CodeFunctionNotSupported ErrorCode = 42

	// CodeUnknownError indicates an unrecognised device error code.
	CodeUnknownError ErrorCode = 43

	// CodeStreamOutOfSync indicates a streamed read lost chunk alignment.
	CodeStreamOutOfSync ErrorCode = 51

	// CodeNonASCIICharInSecret indicates an authentication secret outside ASCII.
	CodeNonASCIICharInSecret ErrorCode = 71

	// CodeWrongDeviceType indicates the device at the UID has a different identifier.
	CodeWrongDeviceType ErrorCode = 81

	// CodeDeviceReplaced indicates another device object took over the UID.
	CodeDeviceReplaced ErrorCode = 82

	// CodeWrongResponseLength indicates a response with an unexpected length.
	CodeWrongResponseLength ErrorCode = 83

	// CodeInt64NotSupported is kept for code compatibility; Go always supports int64.
	CodeInt64NotSupported ErrorCode = 91
)

// String returns the code name.
func (c ErrorCode) String() string {
	switch c {
	case CodeAlreadyConnected:
		return "ALREADY_CONNECTED"
	case CodeNotConnected:
		return "NOT_CONNECTED"
	case CodeConnectFailed:
		return "CONNECT_FAILED"
	case CodeInvalidFunctionID:
		return "INVALID_FUNCTION_ID"
	case CodeTimeout:
		return "TIMEOUT"
	case CodeInvalidParameter:
		return "INVALID_PARAMETER"
	case CodeFunctionNotSupported:
		return "FUNCTION_NOT_SUPPORTED"
	case CodeUnknownError:
		return "UNKNOWN_ERROR"
	case CodeStreamOutOfSync:
		return "STREAM_OUT_OF_SYNC"
	case CodeNonASCIICharInSecret:
		return "NON_ASCII_CHAR_IN_SECRET"
	case CodeWrongDeviceType:
		return "WRONG_DEVICE_TYPE"
	case CodeDeviceReplaced:
		return "DEVICE_REPLACED"
	case CodeWrongResponseLength:
		return "WRONG_RESPONSE_LENGTH"
	case CodeInt64NotSupported:
		return "INT64_NOT_SUPPORTED"
	default:
		return "UNKNOWN"
	}
}

// Error is a TFP error carrying a code and an optional detail message.
type Error struct {
	Code    ErrorCode
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code.String()
}

// Is reports whether target is an *Error with the same code, so
// errors.Is(err, ErrTimeout) holds for any timeout regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Errorf returns an *Error with the given code and a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinel errors for use with errors.Is.
var (
	ErrAlreadyConnected     = &Error{Code: CodeAlreadyConnected}
	ErrNotConnected         = &Error{Code: CodeNotConnected}
	ErrConnectFailed        = &Error{Code: CodeConnectFailed}
	ErrInvalidFunctionID    = &Error{Code: CodeInvalidFunctionID}
	ErrTimeout              = &Error{Code: CodeTimeout}
	ErrInvalidParameter     = &Error{Code: CodeInvalidParameter}
	ErrFunctionNotSupported = &Error{Code: CodeFunctionNotSupported}
	ErrUnknownError         = &Error{Code: CodeUnknownError}
	ErrStreamOutOfSync      = &Error{Code: CodeStreamOutOfSync}
	ErrNonASCIICharInSecret = &Error{Code: CodeNonASCIICharInSecret}
	ErrWrongDeviceType      = &Error{Code: CodeWrongDeviceType}
	ErrDeviceReplaced       = &Error{Code: CodeDeviceReplaced}
	ErrWrongResponseLength  = &Error{Code: CodeWrongResponseLength}
	ErrInt64NotSupported    = &Error{Code: CodeInt64NotSupported}
)

// DeviceError maps the 2-bit error code of a response header to an error.
// Code 0 means success and yields nil.
func DeviceError(code uint8) error {
	switch code {
	case 0:
		return nil
	case 1:
		return ErrInvalidParameter
	case 2:
		return ErrFunctionNotSupported
	default:
		return ErrUnknownError
	}
}
