// Package planner classifies a resolved dependency set against what's
// already installed, deciding for each package whether it needs a remote
// download, can be linked from the local cache, must be reinstalled, is
// already satisfied, or should be removed as extraneous.
package planner

import (
	"log/slog"

	"github.com/bilusteknoloji/pipg/internal/installer"
	"github.com/bilusteknoloji/pipg/internal/resolver"
)

// Plan partitions a resolved set relative to an installed environment.
type Plan struct {
	// Remote packages have no usable local wheel and must be downloaded.
	Remote []resolver.ResolvedPackage

	// Local packages already have a matching wheel sitting in the cache.
	Local []LocalPackage

	// Reinstall packages are currently installed but must be purged and
	// reinstalled regardless (policy-forced, or their installed version no
	// longer matches the resolved one).
	Reinstall []installer.InstalledPackage

	// NoOp packages are already installed at exactly the resolved version
	// and need no action.
	NoOp []installer.InstalledPackage

	// Extraneous packages are installed but absent from the resolved set
	// entirely.
	Extraneous []installer.InstalledPackage
}

// LocalPackage is a resolved package already available from the local
// cache, paired with the cached wheel's path.
type LocalPackage struct {
	Package resolver.ResolvedPackage
	Path    string
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithLocalIndex overrides the cache lookup used for the Local
// classification. Defaults to a Planner with no local index, in which
// case every package not already installed is classified Remote.
func WithLocalIndex(idx LocalIndex) Option {
	return func(p *Planner) {
		p.local = idx
	}
}

// Planner builds a Plan from a resolved package set and the environment's
// current installation state.
type Planner struct {
	local  LocalIndex
	logger *slog.Logger
}

// New creates a Planner. The index consulted for the Local classification
// is set with WithLocalIndex; without one, local-cache lookups are skipped
// and packages that need installing are classified Remote.
func New(opts ...Option) *Planner {
	p := &Planner{logger: slog.Default()}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Plan classifies resolved against installed under policy.
func (p *Planner) Plan(resolved []resolver.ResolvedPackage, installed installer.InstalledSet, policy Policy) (*Plan, error) {
	plan := &Plan{}

	seen := make(map[string]bool, len(resolved))
	remaining := make(installer.InstalledSet, len(installed))

	for name, pkg := range installed {
		remaining[name] = pkg
	}

	for _, pkg := range resolved {
		if seen[pkg.Name] {
			return nil, &PlanError{Kind: ErrDuplicatePackage, Package: pkg.Name}
		}

		seen[pkg.Name] = true

		existing, isInstalled := remaining[pkg.Name]
		delete(remaining, pkg.Name)

		if isInstalled {
			if policy.shouldReinstall(pkg.Name) {
				plan.Reinstall = append(plan.Reinstall, existing)
			} else if existing.Version == pkg.Version {
				p.logger.Debug("requirement already satisfied", slog.String("package", pkg.Name), slog.String("version", pkg.Version))

				plan.NoOp = append(plan.NoOp, existing)

				continue
			} else {
				p.logger.Debug("installed version superseded",
					slog.String("package", pkg.Name),
					slog.String("installed", existing.Version),
					slog.String("resolved", pkg.Version),
				)

				plan.Reinstall = append(plan.Reinstall, existing)
			}
		}

		if p.local != nil && !policy.noBinary(pkg.Name) {
			if path, ok := p.local.Lookup(pkg.Name, pkg.Version); ok {
				plan.Local = append(plan.Local, LocalPackage{Package: pkg, Path: path})

				continue
			}
		}

		plan.Remote = append(plan.Remote, pkg)
	}

	for _, pkg := range remaining {
		plan.Extraneous = append(plan.Extraneous, pkg)
	}

	return plan, nil
}
