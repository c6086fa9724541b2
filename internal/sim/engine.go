package sim

// Engine is the surface the tick loop and hub drive. World is the production
// implementation; tests substitute recorders.
type Engine interface {
	// Apply stages commands for the next Step.
	Apply(cmds []Command) error
	// Step advances the simulation by one fixed tick of dt seconds.
	Step(tick uint64, dt float64)
	// Snapshot copies the authoritative state at the current tick boundary.
	Snapshot() Snapshot
	// DrainPatches returns and clears the diff entries recorded since the
	// previous drain.
	DrainPatches() []Patch
}

var _ Engine = (*World)(nil)
