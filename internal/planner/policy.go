package planner

// ReinstallMode controls which already-installed packages get purged and
// rebuilt even though they already satisfy the resolved requirement.
type ReinstallMode int

const (
	ReinstallNone ReinstallMode = iota
	ReinstallAll
	ReinstallPackages
)

// NoBinaryMode controls which packages must be built from source even when
// a compatible wheel is available, mirroring plan.rs's NoBinary enum.
type NoBinaryMode int

const (
	NoBinaryNone NoBinaryMode = iota
	NoBinaryAll
	NoBinaryPackages
)

// Policy bundles the reinstall/no-binary knobs the planner consults while
// classifying each resolved package.
type Policy struct {
	Reinstall    ReinstallMode
	ReinstallSet map[string]bool // consulted only when Reinstall == ReinstallPackages
	NoBinary     NoBinaryMode
	NoBinarySet  map[string]bool // consulted only when NoBinary == NoBinaryPackages
}

func (p Policy) shouldReinstall(name string) bool {
	switch p.Reinstall {
	case ReinstallAll:
		return true
	case ReinstallPackages:
		return p.ReinstallSet[name]
	default:
		return false
	}
}

func (p Policy) noBinary(name string) bool {
	switch p.NoBinary {
	case NoBinaryAll:
		return true
	case NoBinaryPackages:
		return p.NoBinarySet[name]
	default:
		return false
	}
}
