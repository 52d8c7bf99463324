package probe

import (
	"errors"
	"fmt"
)

// ErrCode classifies a probe error. The values mirror the native library's
// error codes so that a remotely executed operation can be reported on the
// host with the exact classification the native library produced.
type ErrCode int32

const (
	CodeSuccess             ErrCode = 0
	CodeOutOfMemory         ErrCode = -1
	CodeInvalidOperation    ErrCode = -2
	CodeInvalidParameter    ErrCode = -3
	CodeInvalidDevice       ErrCode = -4
	CodeWrongFamily         ErrCode = -5
	CodeUnknownDevice       ErrCode = -6
	CodeEmuNotConnected     ErrCode = -10
	CodeCannotConnect       ErrCode = -11
	CodeLowVoltage          ErrCode = -12
	CodeNoEmuConnected      ErrCode = -13
	CodeNVMCError           ErrCode = -20
	CodeRecoverFailed       ErrCode = -21
	CodeProtectionError     ErrCode = -90
	CodeLibraryNotFound     ErrCode = -100
	CodeLibraryLoadFailed   ErrCode = -101
	CodeLibraryError        ErrCode = -102
	CodeVerifyError         ErrCode = -160
	CodeFileOperationFailed ErrCode = -162
	CodeAlreadyInstantiated ErrCode = -200
	CodeTimeout             ErrCode = -220
	CodeInternalError       ErrCode = -254
	CodeNotImplementedError ErrCode = -255
)

var codeNames = map[ErrCode]string{
	CodeSuccess:             "SUCCESS",
	CodeOutOfMemory:         "OUT_OF_MEMORY",
	CodeInvalidOperation:    "INVALID_OPERATION",
	CodeInvalidParameter:    "INVALID_PARAMETER",
	CodeInvalidDevice:       "INVALID_DEVICE_FOR_OPERATION",
	CodeWrongFamily:         "WRONG_FAMILY_FOR_DEVICE",
	CodeUnknownDevice:       "UNKNOWN_DEVICE",
	CodeEmuNotConnected:     "EMULATOR_NOT_CONNECTED",
	CodeCannotConnect:       "CANNOT_CONNECT",
	CodeLowVoltage:          "LOW_VOLTAGE",
	CodeNoEmuConnected:      "NO_EMULATOR_CONNECTED",
	CodeNVMCError:           "NVMC_ERROR",
	CodeRecoverFailed:       "RECOVER_FAILED",
	CodeProtectionError:     "NOT_AVAILABLE_BECAUSE_PROTECTION",
	CodeLibraryNotFound:     "LIBRARY_NOT_FOUND",
	CodeLibraryLoadFailed:   "LIBRARY_COULD_NOT_BE_OPENED",
	CodeLibraryError:        "LIBRARY_ERROR",
	CodeVerifyError:         "VERIFY_ERROR",
	CodeFileOperationFailed: "FILE_OPERATION_FAILED",
	CodeAlreadyInstantiated: "ALREADY_INSTANTIATED",
	CodeTimeout:             "TIME_OUT",
	CodeInternalError:       "INTERNAL_ERROR",
	CodeNotImplementedError: "NOT_IMPLEMENTED_ERROR",
}

func (c ErrCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ERRCODE(%d)", int32(c))
}

// Error is a classified probe failure.
type Error struct {
	Code    ErrCode
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("probe: %s", e.Code)
	}
	return fmt.Sprintf("probe: %s: %s", e.Code, e.Message)
}

// Errorf builds a classified probe error.
func Errorf(code ErrCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the classification from err. Non-probe errors report
// CodeInternalError, nil reports CodeSuccess.
func CodeOf(err error) ErrCode {
	if err == nil {
		return CodeSuccess
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeInternalError
}
