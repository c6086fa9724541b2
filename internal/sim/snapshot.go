package sim

import (
	"stronghold/server/internal/ai"
	"stronghold/server/internal/entity"
)

// MatchStatus is the session outcome.
type MatchStatus string

const (
	MatchActive  MatchStatus = "active"
	MatchVictory MatchStatus = "victory"
	MatchDefeat  MatchStatus = "defeat"
)

// Wallet is a player's harvested resource balance.
type Wallet struct {
	Wood  int `json:"wood"`
	Stone int `json:"stone"`
	Wheat int `json:"wheat"`
	Metal int `json:"metal"`
	Gold  int `json:"gold"`
}

// Add credits the named resource. Unknown names are ignored.
func (w *Wallet) Add(resource string, amount int) {
	switch resource {
	case "wood":
		w.Wood += amount
	case "stone":
		w.Stone += amount
	case "wheat":
		w.Wheat += amount
	case "metal":
		w.Metal += amount
	case "gold":
		w.Gold += amount
	}
}

// CanAfford reports whether the wallet covers a cost table.
func (w Wallet) CanAfford(cost map[string]int) bool {
	for resource, amount := range cost {
		switch resource {
		case "wood":
			if w.Wood < amount {
				return false
			}
		case "stone":
			if w.Stone < amount {
				return false
			}
		case "wheat":
			if w.Wheat < amount {
				return false
			}
		case "metal":
			if w.Metal < amount {
				return false
			}
		case "gold":
			if w.Gold < amount {
				return false
			}
		}
	}
	return true
}

// Spend debits a cost table. Callers must check CanAfford first.
func (w *Wallet) Spend(cost map[string]int) {
	for resource, amount := range cost {
		w.Add(resource, -amount)
	}
}

// PlayerView is the per-player slice of a snapshot.
type PlayerView struct {
	PlayerID string    `json:"playerId"`
	HeroID   entity.ID `json:"heroId,omitempty"`
	Wallet   Wallet    `json:"wallet"`
}

// TileView is a depleted-resource entry in a snapshot. Tiles at full stock
// are omitted; clients reconstruct them from the map descriptor.
type TileView struct {
	X         int `json:"x"`
	Y         int `json:"y"`
	Remaining int `json:"remaining"`
}

// Snapshot is a consistent copy of authoritative state taken at a tick
// boundary. It is safe to hand to network goroutines.
type Snapshot struct {
	Tick     uint64          `json:"t"`
	Entities []entity.Entity `json:"entities"`
	Players  []PlayerView    `json:"players"`
	Depleted []TileView      `json:"depleted,omitempty"`
	Wave     ai.WaveState    `json:"wave"`
	Status   MatchStatus     `json:"status"`
	Config   WorldConfig     `json:"config"`
}
