package planner

import "fmt"

// ErrorKind is a closed enum of the ways building a Plan can fail, mirroring
// plan.rs's bail! sites (duplicate requirement, incompatible URL
// dependency, no-binary/no-build conflicts).
type ErrorKind int

const (
	ErrDuplicatePackage ErrorKind = iota
	ErrIncompatiblePlatform
	ErrNoBinaryConflict
	ErrNoBuildConflict
)

// PlanError reports a classification failure for a single package.
type PlanError struct {
	Kind    ErrorKind
	Package string
	Detail  string
}

func (e *PlanError) Error() string {
	switch e.Kind {
	case ErrDuplicatePackage:
		return fmt.Sprintf("duplicate package in resolved set: %s", e.Package)
	case ErrIncompatiblePlatform:
		return fmt.Sprintf("%s: %s", e.Package, e.Detail)
	case ErrNoBinaryConflict:
		return fmt.Sprintf("%s: URL dependency points to a wheel, which conflicts with --no-binary", e.Package)
	case ErrNoBuildConflict:
		return fmt.Sprintf("%s: local source distribution has no build backend, which conflicts with --no-build", e.Package)
	default:
		return fmt.Sprintf("%s: plan error", e.Package)
	}
}
