package medication

import (
	"errors"
	"fmt"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
)

var (
	ErrInvalidCode     = errors.New("code is not valid in its code system")
	ErrNoAdapter       = errors.New("no adapter configured for code system")
	ErrSystemMismatch  = errors.New("entity belongs to a different code system")
	ErrMissingCode     = errors.New("reference has no code")
	ErrNilEntity       = errors.New("reference holds no entity")
	ErrNotApplicable   = errors.New("operation not supported for this code system")
	ErrUnsupportedType = errors.New("unsupported code system")
)

// AdapterError reports a failed code-system call. The entity that issued
// the call keeps its previous state, so retrying the operation re-attempts
// the call.
type AdapterError struct {
	System codesystem.System
	Op     string
	Code   string
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s %s %q: %v", e.System, e.Op, e.Code, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// IdentityError reports a reference that could not be attached to an
// entity. The attachment is skipped.
type IdentityError struct {
	System codesystem.System
	Ref    string
	Err    error
}

func (e *IdentityError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("%s reference: %v", e.System, e.Err)
	}
	return fmt.Sprintf("%s reference %q: %v", e.System, e.Ref, e.Err)
}

func (e *IdentityError) Unwrap() error { return e.Err }
