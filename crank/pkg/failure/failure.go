// Package failure classifies remote errors into what a batch should do about them.
package failure

import (
	"errors"
	"fmt"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger"
)

// Failure is one of *Fatal, *PossibleDegradation or *Skip.
type Failure interface {
	error
	failure()
}

// Fatal aborts the batch.
type Fatal struct{ Err error }

// PossibleDegradation is counted and the batch continues. The request may or may
// not have landed.
type PossibleDegradation struct{ Err error }

// Skip is discarded and the batch continues.
type Skip struct{ Err error }

func (*Fatal) failure()               {}
func (*PossibleDegradation) failure() {}
func (*Skip) failure()                {}

func (f *Fatal) Error() string               { return "fatal: " + errString(f.Err) }
func (f *PossibleDegradation) Error() string { return "possible degradation: " + errString(f.Err) }
func (f *Skip) Error() string                { return "skip: " + errString(f.Err) }

func (f *Fatal) Unwrap() error               { return f.Err }
func (f *PossibleDegradation) Unwrap() error { return f.Err }
func (f *Skip) Unwrap() error                { return f.Err }

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

// Classify maps err onto a Failure. It returns nil for a nil error.
func Classify(err error) Failure {
	if err == nil {
		return nil
	}
	var f Failure
	if errors.As(err, &f) {
		return f
	}
	switch ledger.KindOf(err) {
	case ledger.KindNotFound:
		return &Skip{Err: err}
	case ledger.KindTransport, ledger.KindSubscription:
		return &PossibleDegradation{Err: err}
	case ledger.KindProgram, ledger.KindMalformed:
		return &Fatal{Err: err}
	default:
		// Cancellation and anything not coming from the ledger have no degraded continuation.
		return &Fatal{Err: err}
	}
}

// MustSucceed turns any error into a Fatal failure. Used for steps without a
// meaningful degraded continuation, such as loading the distribution.
func MustSucceed[T any](v T, err error) (T, error) {
	if err != nil {
		var fatal *Fatal
		if errors.As(err, &fatal) {
			return v, err
		}
		return v, &Fatal{Err: err}
	}
	return v, nil
}

// Assess returns the degradation increment for err: 1 for a possible
// degradation, 0 for success or a skip. Fatal failures are returned as errors.
func Assess(err error) (int, error) {
	switch f := Classify(err).(type) {
	case nil:
		return 0, nil
	case *Skip:
		return 0, nil
	case *PossibleDegradation:
		return 1, nil
	case *Fatal:
		return 0, f
	default:
		panic(fmt.Sprintf("failure: unhandled failure type %T", f))
	}
}

// IsFatal reports whether err classifies as Fatal.
func IsFatal(err error) bool {
	_, ok := Classify(err).(*Fatal)
	return ok
}

// IsPossibleDegradation reports whether err classifies as PossibleDegradation.
func IsPossibleDegradation(err error) bool {
	_, ok := Classify(err).(*PossibleDegradation)
	return ok
}
