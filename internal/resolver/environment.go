package resolver

import "github.com/bilusteknoloji/pipg/internal/marker"

// Environment tells the Driver which flavor of resolution to run: a single
// concrete interpreter/platform (Specific), or a marker-parameterized
// resolution valid across every environment a lockfile needs to cover
// (Universal).
type Environment interface {
	isEnvironment()
}

// Specific resolves for exactly one concrete interpreter/platform, encoded
// as the conjunction of marker comparisons that environment satisfies (e.g.
// python_full_version == "3.11.4" and sys_platform == "linux"). No forking
// ever occurs: every dependency marker is evaluated directly against
// Marker.
type Specific struct {
	Marker marker.Marker
}

func (Specific) isEnvironment() {}

// Universal resolves once for every environment a project's markers could
// ever select between, forking the search on the distinct markers of the
// root requirements. Markers on transitive dependencies do not split the
// search; they are only recorded on graph edges. InitialForks seeds the
// fork set from a previous lockfile's fork markers so re-resolving after a
// small change doesn't need to rediscover forks it already knows about.
type Universal struct {
	InitialForks []marker.Marker
}

func (Universal) isEnvironment() {}
