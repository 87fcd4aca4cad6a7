package govrewards

import (
	"strings"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger"
)

// Custom error codes start at the Anchor offset.
const errorCodeOffset = 6000

// ErrorCode is a governance rewards program error.
type ErrorCode uint32

const (
	ErrCodeRegistrationClosed ErrorCode = errorCodeOffset + iota
	ErrCodeRegistrationOpen
	ErrCodeAlreadyRegistered
	ErrCodeAlreadyClaimed
	ErrCodeInvalidOption
	ErrCodeInvalidPayoutAddress
	ErrCodeAlreadyReclaimed
)

var errorNames = map[ErrorCode]string{
	ErrCodeRegistrationClosed:   "RegistrationClosed",
	ErrCodeRegistrationOpen:     "RegistrationOpen",
	ErrCodeAlreadyRegistered:    "AlreadyRegistered",
	ErrCodeAlreadyClaimed:       "AlreadyClaimed",
	ErrCodeInvalidOption:        "InvalidOption",
	ErrCodeInvalidPayoutAddress: "InvalidPayoutAddress",
	ErrCodeAlreadyReclaimed:     "AlreadyReclaimed",
}

func (c ErrorCode) String() string {
	if name, ok := errorNames[c]; ok {
		return name
	}
	return "Unknown"
}

// IsProgramError reports whether err is a program rejection with the given code.
// The code is matched on the custom error number, or on the Anchor error log line
// when the node did not return a structured error.
func IsProgramError(err error, code ErrorCode) bool {
	if ledger.KindOf(err) != ledger.KindProgram {
		return false
	}
	if got, ok := ledger.CustomCode(err); ok {
		return got == uint32(code)
	}
	needle := "Error Code: " + code.String() + "."
	for _, line := range ledger.Logs(err) {
		if strings.Contains(line, needle) {
			return true
		}
	}
	return false
}

// IsAlreadyReclaimed reports whether err is the program saying the option was already swept.
func IsAlreadyReclaimed(err error) bool {
	return IsProgramError(err, ErrCodeAlreadyReclaimed)
}
