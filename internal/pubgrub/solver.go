package pubgrub

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/bilusteknoloji/pipg/internal/pep440"
	"golang.org/x/xerrors"
)

// Provider supplies the package universe the solver searches: every
// version that could satisfy a range, and a given version's own
// dependencies. Implementations may hit the distribution database, so both
// methods are context-aware and expected to be cancellable.
type Provider interface {
	// Versions returns every known version of pkg, most-preferred first
	// (typically newest-first, but an implementation honoring
	// version-restricting constraints may reorder).
	Versions(ctx context.Context, pkg string) ([]pep440.Version, error)
	// Dependencies returns pkg@v's own dependency ranges, keyed by
	// dependency name.
	Dependencies(ctx context.Context, pkg string, v pep440.Version) (map[string]pep440.Range, error)
}

// RootPackage is the synthetic package name representing the project being
// resolved for, the same role `uv`'s virtual root package plays.
const RootPackage = "\x00root"

// Solver runs the PubGrub algorithm to completion or failure.
type Solver struct {
	provider Provider
}

// New creates a Solver backed by provider.
func New(provider Provider) *Solver {
	return &Solver{provider: provider}
}

// Solve finds a version assignment satisfying every dependency reachable
// from rootDeps, or returns a NoSolutionError describing why none exists.
func (s *Solver) Solve(ctx context.Context, rootDeps map[string]pep440.Range) (map[string]pep440.Version, error) {
	arena := NewArena[Incompatibility]()
	byPackage := make(map[string][]IncompatID)
	ps := NewPartialSolution()

	register := func(incomp Incompatibility) IncompatID {
		id := arena.Alloc(incomp)
		for pkg := range incomp.Terms {
			byPackage[pkg] = append(byPackage[pkg], id)
		}

		return id
	}

	for dep, r := range rootDeps {
		register(FromDependency(RootPackage, pep440.Full(), r, dep))
	}

	rootVersion, err := pep440.Parse("0")
	if err != nil {
		return nil, fmt.Errorf("parsing sentinel root version: %w", err)
	}

	ps.AddDecision(RootPackage, rootVersion)

	next := RootPackage

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conflictErr := s.propagate(ctx, ps, arena, byPackage, register, next)
		if conflictErr != nil {
			return nil, conflictErr
		}

		pkg, ok := s.nextUndecidedPackage(ctx, ps, byPackage)
		if !ok {
			solution := ps.Decisions()
			delete(solution, RootPackage)

			return solution, nil
		}

		versions, err := s.provider.Versions(ctx, pkg)
		if err != nil {
			return nil, fmt.Errorf("listing versions of %s: %w", pkg, err)
		}

		allowed := ps.Term(pkg).AsRange()

		chosen, found := pickVersion(versions, allowed)
		if !found {
			register(NoVersions(pkg, allowed))
			next = pkg

			continue
		}

		deps, err := s.provider.Dependencies(ctx, pkg, chosen)
		if err != nil {
			return nil, fmt.Errorf("reading dependencies of %s %s: %w", pkg, chosen, err)
		}

		for depName, depRange := range deps {
			register(FromDependency(pkg, exactVersionRange(chosen), depRange, depName))
		}

		ps.AddDecision(pkg, chosen)
		next = pkg
	}
}

func pickVersion(versions []pep440.Version, allowed pep440.Range) (pep440.Version, bool) {
	for _, v := range versions {
		if allowed.Contains(v) {
			return v, true
		}
	}

	return pep440.Version{}, false
}

// propagate performs unit propagation starting from startPkg, resolving any
// conflict it encounters before returning.
func (s *Solver) propagate(
	ctx context.Context,
	ps *PartialSolution,
	arena *Arena[Incompatibility],
	byPackage map[string][]IncompatID,
	register func(Incompatibility) IncompatID,
	startPkg string,
) error {
	changed := []string{startPkg}

	for len(changed) > 0 {
		pkg := changed[len(changed)-1]
		changed = changed[:len(changed)-1]

		ids := append([]IncompatID(nil), byPackage[pkg]...)

		for _, id := range ids {
			incomp := arena.Get(id)

			rel, unsatisfied := ps.Relation(incomp)

			switch rel {
			case IncompatContradicted, IncompatInconclusive:
				continue
			case IncompatAlmostSatisfied:
				term := incomp.Terms[unsatisfied].Negate()
				ps.AddDerivation(unsatisfied, term, id)
				changed = append(changed, unsatisfied)
			case IncompatSatisfied:
				_, propagatePkg, err := s.resolveConflict(ctx, ps, arena, id, register)
				if err != nil {
					return err
				}

				changed = []string{propagatePkg}
			}

			if rel == IncompatSatisfied {
				break
			}
		}
	}

	return nil
}

// resolveConflict implements conflict-driven backtracking: it repeatedly
// merges the conflicting incompatibility with whatever caused its most
// recent satisfying assignment until the two disagree on decision level,
// then backtracks there.
func (s *Solver) resolveConflict(
	ctx context.Context,
	ps *PartialSolution,
	arena *Arena[Incompatibility],
	conflictID IncompatID,
	register func(Incompatibility) IncompatID,
) (IncompatID, string, error) {
	current := conflictID

	for {
		incomp := arena.Get(current)

		if ps.MaxLevel(incomp) == 0 {
			return 0, "", NewNoSolutionError(incomp)
		}

		result := ps.SatisfierSearch(incomp)
		if result.UnconditionalConflict {
			return 0, "", NewNoSolutionError(incomp)
		}

		if !result.SameLevel {
			ps.Backtrack(result.PreviousLevel)
			newID := register(incomp)

			return newID, result.Package, nil
		}

		cause := arena.Get(result.Cause)
		merged := priorCause(incomp, cause, result.Package, current, result.Cause)
		current = arena.Alloc(merged)
	}
}

type packageHeapItem struct {
	name     string
	priority int // lower means higher priority (fewer candidate versions)
}

type packageHeap []packageHeapItem

func (h packageHeap) Len() int            { return len(h) }
func (h packageHeap) Less(i, j int) bool  { return h[i].priority < h[j].priority }
func (h packageHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *packageHeap) Push(x any)         { *h = append(*h, x.(packageHeapItem)) }
func (h *packageHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]

	return item
}

// nextUndecidedPackage picks the undecided package with the fewest
// remaining candidate versions, the standard PubGrub tie-break heuristic
// ("fail fast on the most constrained choice"), using container/heap.
func (s *Solver) nextUndecidedPackage(ctx context.Context, ps *PartialSolution, byPackage map[string][]IncompatID) (string, bool) {
	h := &packageHeap{}
	heap.Init(h)

	for pkg := range byPackage {
		if _, decided := ps.Decided(pkg); decided {
			continue
		}

		term := ps.Term(pkg)
		if !term.IsPositive() {
			continue
		}

		versions, err := s.provider.Versions(ctx, pkg)
		if err != nil {
			continue
		}

		count := 0

		for _, v := range versions {
			if term.AsRange().Contains(v) {
				count++
			}
		}

		heap.Push(h, packageHeapItem{name: pkg, priority: count})
	}

	if h.Len() == 0 {
		return "", false
	}

	return heap.Pop(h).(packageHeapItem).name, true
}

// NoSolutionError is returned when the problem is unsatisfiable. Message
// uses xerrors to capture the derivation frame at the point of failure for
// diagnostic narration, the one place in this module that needs more than
// plain fmt.Errorf.
type NoSolutionError struct {
	frame xerrors.Frame
	root  Incompatibility
}

// NewNoSolutionError wraps the terminal incompatibility with a captured
// stack frame.
func NewNoSolutionError(root Incompatibility) *NoSolutionError {
	return &NoSolutionError{frame: xerrors.Caller(1), root: root}
}

func (e *NoSolutionError) Error() string {
	return fmt.Sprintf("no solution: %s", e.root.String())
}

func (e *NoSolutionError) Format(f fmt.State, verb rune) { xerrors.FormatError(e, f, verb) }

func (e *NoSolutionError) FormatError(p xerrors.Printer) error {
	p.Print(e.Error())
	e.frame.Format(p)

	return nil
}

// Root exposes the terminal incompatibility for callers that want to
// render a fuller derivation tree than Error()'s one-line summary.
func (e *NoSolutionError) Root() Incompatibility { return e.root }
