package sim

import (
	"math/rand"

	"stronghold/server/internal/telemetry"
	"stronghold/server/logging"
)

// Deps carries shared infrastructure dependencies required by the simulation
// engine. The RNG is the deterministic root stream; subsystems derive their
// own streams from it so behaviour is reproducible from tick+seed.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Clock     logging.Clock
	Publisher logging.Publisher
	RNG       *rand.Rand
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	if d.Metrics == nil {
		d.Metrics = telemetry.NewCounters()
	}
	if d.Clock == nil {
		d.Clock = logging.SystemClock{}
	}
	if d.Publisher == nil {
		d.Publisher = logging.NopPublisher()
	}
	if d.RNG == nil {
		d.RNG = rand.New(rand.NewSource(1))
	}
	return d
}

// subsystemRNG derives an independent deterministic stream from the root RNG
// for the named subsystem.
func subsystemRNG(root *rand.Rand, label string) *rand.Rand {
	seed := int64(0)
	for _, r := range label {
		seed = seed*131 + int64(r)
	}
	return rand.New(rand.NewSource(seed ^ root.Int63()))
}
