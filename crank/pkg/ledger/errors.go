package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// ErrAccountNotFound is returned when the requested account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// Kind is the category of a remote failure.
type Kind int

const (
	// KindNotFound means the target account does not exist (anymore).
	KindNotFound Kind = iota + 1
	// KindProgram means on-chain program logic rejected the transaction.
	KindProgram
	// KindMalformed means the remote answered with something that could not be parsed.
	KindMalformed
	// KindTransport means the request did not get a well-formed answer from the node.
	KindTransport
	// KindSubscription means the realtime confirmation subscription failed.
	KindSubscription
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindProgram:
		return "program"
	case KindMalformed:
		return "malformed"
	case KindTransport:
		return "transport"
	case KindSubscription:
		return "subscription"
	default:
		return "unknown"
	}
}

// Error is a categorized remote failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error

	// Populated for KindProgram when the node reported a custom program error.
	CustomCode *uint32
	Logs       []string
}

func (e *Error) Error() string {
	if e.CustomCode != nil {
		return fmt.Sprintf("ledger: %s: %s error (custom program error %d): %v", e.Op, e.Kind, *e.CustomCode, e.Err)
	}
	return fmt.Sprintf("ledger: %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with the given kind.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewProgramError returns a program rejection carrying a custom error code.
func NewProgramError(op string, code uint32, logs ...string) *Error {
	return &Error{
		Kind:       KindProgram,
		Op:         op,
		Err:        fmt.Errorf("custom program error: 0x%x", code),
		CustomCode: &code,
		Logs:       logs,
	}
}

// KindOf returns the category of err, or 0 if err is not a ledger error.
func KindOf(err error) Kind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	if errors.Is(err, ErrAccountNotFound) {
		return KindNotFound
	}
	return 0
}

// CustomCode returns the custom program error code carried by err, if any.
func CustomCode(err error) (uint32, bool) {
	var lerr *Error
	if errors.As(err, &lerr) && lerr.CustomCode != nil {
		return *lerr.CustomCode, true
	}
	return 0, false
}

// Logs returns the program logs carried by err, if any.
func Logs(err error) []string {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Logs
	}
	return nil
}

// JSON-RPC error codes reported by Solana nodes.
const (
	codeParseError               = -32700
	codeInvalidRequest           = -32600
	codeInvalidParams            = -32602
	codeSendTransactionPreflight = -32002
	codeSignatureVerification    = -32003
	codeTransactionPrecompile    = -32008
)

// categorize maps an error returned by solana-go into a ledger error.
func categorize(op string, err error) error {
	if err == nil {
		return nil
	}
	var lerr *Error
	if errors.As(err, &lerr) {
		return err
	}
	if errors.Is(err, solanarpc.ErrNotFound) || errors.Is(err, ErrAccountNotFound) {
		return &Error{Kind: KindNotFound, Op: op, Err: ErrAccountNotFound}
	}
	if errors.Is(err, context.Canceled) {
		// Cancellation is the caller's decision, not a remote failure.
		return err
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case codeSendTransactionPreflight, codeSignatureVerification, codeTransactionPrecompile:
			e := &Error{Kind: KindProgram, Op: op, Err: err}
			if code, ok := customCodeFrom(rpcErr.Data); ok {
				e.CustomCode = &code
			}
			e.Logs = logsFrom(rpcErr.Data)
			return e
		case codeParseError, codeInvalidRequest, codeInvalidParams:
			return &Error{Kind: KindMalformed, Op: op, Err: err}
		default:
			return &Error{Kind: KindTransport, Op: op, Err: err}
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &Error{Kind: KindMalformed, Op: op, Err: err}
	}
	if msg := strings.ToLower(err.Error()); strings.Contains(msg, "unmarshal") || strings.Contains(msg, "decode") {
		return &Error{Kind: KindMalformed, Op: op, Err: err}
	}

	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// transactionError builds a program error from a transaction status error as
// reported by getSignatureStatuses or a signature notification.
func transactionError(op string, txErr any) *Error {
	e := &Error{Kind: KindProgram, Op: op, Err: fmt.Errorf("transaction failed: %v", txErr)}
	if code, ok := customCodeFrom(map[string]any{"err": txErr}); ok {
		e.CustomCode = &code
	}
	return e
}

// customCodeFrom digs the custom program error out of the RPC error data, which
// has the shape {"err": {"InstructionError": [idx, {"Custom": code}]}, "logs": [...]}.
func customCodeFrom(data any) (uint32, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return 0, false
	}
	txErr, ok := m["err"].(map[string]any)
	if !ok {
		return 0, false
	}
	ixErr, ok := txErr["InstructionError"].([]any)
	if !ok || len(ixErr) != 2 {
		return 0, false
	}
	inner, ok := ixErr[1].(map[string]any)
	if !ok {
		return 0, false
	}
	return toUint32(inner["Custom"])
}

func logsFrom(data any) []string {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := m["logs"].([]any)
	if !ok {
		return nil
	}
	logs := make([]string, 0, len(raw))
	for _, l := range raw {
		if s, ok := l.(string); ok {
			logs = append(logs, s)
		}
	}
	return logs
}

func toUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 || n > math.MaxUint32 || n != math.Trunc(n) {
			return 0, false
		}
		return uint32(n), true
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 32)
		if err != nil {
			return 0, false
		}
		return uint32(u), true
	case int:
		if n < 0 || n > math.MaxUint32 {
			return 0, false
		}
		return uint32(n), true
	case int64:
		if n < 0 || n > math.MaxUint32 {
			return 0, false
		}
		return uint32(n), true
	case uint32:
		return n, true
	case uint64:
		if n > math.MaxUint32 {
			return 0, false
		}
		return uint32(n), true
	default:
		return 0, false
	}
}
