package engine

import (
	"fmt"

	"github.com/ajitpratap0/stratus/pkg/errors"
)

// Preparation phases, as reported in errors, logs and spans
const (
	PhasePreAction  = "pre-action"
	PhasePostAction = "post-action"
)

// Reason tells why a worker loop ended or a connector was closed
type Reason int

const (
	// ReasonEndOfData means the worker consumed or produced everything
	ReasonEndOfData Reason = iota
	// ReasonCancelled means a consumer or the caller stopped the tree
	ReasonCancelled
	// ReasonUpstreamError means another worker failed and the tree tore down
	ReasonUpstreamError
	// ReasonFailed means the worker itself returned an error
	ReasonFailed
	// ReasonPanicked means the operator's Run panicked
	ReasonPanicked
)

func (r Reason) String() string {
	switch r {
	case ReasonEndOfData:
		return "end_of_data"
	case ReasonCancelled:
		return "cancelled"
	case ReasonUpstreamError:
		return "upstream_error"
	case ReasonFailed:
		return "failed"
	case ReasonPanicked:
		return "panicked"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// ConfigurationError reports an invariant violation found while preparing a tree
func ConfigurationError(format string, args ...interface{}) *errors.Error {
	return errors.Newf(errors.ErrorTypeConfiguration, format, args...)
}

// CapacityError reports cardinalities that do not fit a connector's capacity
func CapacityError(format string, args ...interface{}) *errors.Error {
	return errors.Newf(errors.ErrorTypeCapacity, format, args...)
}

// ClosedError reports an operation on a closed connector
func ClosedError(connector string, reason Reason) *errors.Error {
	return errors.Newf(errors.ErrorTypeClosed, "connector %q closed (%s)", connector, reason).
		WithDetail("connector", connector).
		WithDetail("reason", reason)
}

// IsConfiguration reports whether err carries a ConfigurationError
func IsConfiguration(err error) bool {
	return errors.IsType(err, errors.ErrorTypeConfiguration)
}

// IsCapacity reports whether err carries a CapacityError
func IsCapacity(err error) bool {
	return errors.IsType(err, errors.ErrorTypeCapacity)
}

// IsClosed reports whether err carries a ClosedError
func IsClosed(err error) bool {
	return errors.IsType(err, errors.ErrorTypeClosed)
}

// ClosedReason extracts the close reason from a ClosedError
func ClosedReason(err error) (Reason, bool) {
	e := errors.FindType(err, errors.ErrorTypeClosed)
	if e == nil {
		return 0, false
	}
	r, ok := e.Details["reason"].(Reason)
	return r, ok
}

// phaseError attributes a hook failure to its operator and phase, keeping
// the cause's error type.
func phaseError(op Operator, phase string, err error) error {
	return errors.Wrap(err, errors.TypeOf(err), fmt.Sprintf("operator %q failed in %s", op.Name(), phase)).
		WithDetail("operator", op.Name()).
		WithDetail("phase", phase)
}
