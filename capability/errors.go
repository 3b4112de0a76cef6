package capability

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCapabilityNotFound means nothing is exported under the name.
	ErrCapabilityNotFound = errors.New("capability: not found")

	// ErrVersionMismatch means exports exist but none is compatible.
	ErrVersionMismatch = errors.New("capability: no compatible version")

	// ErrCapabilityInUse means an export still has live leases.
	ErrCapabilityInUse = errors.New("capability: in use")

	// ErrDuplicateExport means the exact name and version is already
	// exported.
	ErrDuplicateExport = errors.New("capability: already exported")

	// ErrRegistryClosed is returned after Shutdown.
	ErrRegistryClosed = errors.New("capability: registry shut down")
)

// ResolutionError describes a failed Resolve. It never aborts the caller.
type ResolutionError struct {
	Namespace string
	Name      string
	Requested Version
	Available []Version
	Err       error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("capability %s/%s@%s: %v", e.Namespace, e.Name, e.Requested, e.Err)
	if len(e.Available) > 0 {
		vs := make([]string, len(e.Available))
		for i, v := range e.Available {
			vs[i] = v.String()
		}
		msg += " (available: " + strings.Join(vs, ", ") + ")"
	}
	return msg
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ErrTypeMismatch means an export was resolved with a type parameter other
// than the one it was exported with.
var ErrTypeMismatch = errors.New("capability: type mismatch")
