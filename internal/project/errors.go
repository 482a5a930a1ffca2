package project

import (
	"errors"
	"fmt"
)

var (
	ErrPackageNotFound            = errors.New("package not found")
	ErrKindMismatch               = errors.New("manifest kind mismatch")
	ErrMemberNotFound             = errors.New("workspace member not found")
	ErrNotAMember                 = errors.New("package is not a workspace member")
	ErrInvalidWorkspaceDependency = errors.New("invalid workspace dependency")
	ErrDuplicateMember            = errors.New("duplicate workspace member")
	ErrDependencyCycle            = errors.New("dependency cycle")
)

// ResolveError carries the path and name a resolution failure is about.
// It unwraps to one of the Err* sentinels above.
type ResolveError struct {
	Err    error
	Path   string
	Name   string
	Detail string
}

func (e *ResolveError) Error() string {
	msg := e.Err.Error()
	if e.Name != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Name)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Path != "" {
		return e.Path + ": " + msg
	}
	return msg
}

func (e *ResolveError) Unwrap() error { return e.Err }
