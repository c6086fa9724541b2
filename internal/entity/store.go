package entity

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrNotFound is returned for lookups of unknown or removed entities.
var ErrNotFound = errors.New("entity: not found")

// cellSize is the spatial index bucket edge in world units (tiles). Chosen to
// cover the longest attack range in one ring of neighbouring cells.
const cellSize = 4.0

type cellKey struct{ cx, cy int }

// Spec describes an entity to spawn. The store assigns the ID.
type Spec struct {
	Kind      Kind
	Class     Class
	Archetype string
	Building  string
	OwnerID   string
	X, Y      float64
	Facing    Facing
	Health    int
	MaxHealth int
	Radius    float64
	Speed     float64
	Damage    int

	VelX, VelY    float64
	ExpiresAtTick uint64
}

// Store is the authoritative entity table for one session. It is owned and
// mutated exclusively by the simulation tick; concurrent readers must go
// through tick-boundary snapshots.
type Store struct {
	entities map[ID]*Entity
	cells    map[cellKey]map[ID]struct{}
	nextSeq  uint64
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		entities: make(map[ID]*Entity),
		cells:    make(map[cellKey]map[ID]struct{}),
	}
}

func keyFor(x, y float64) cellKey {
	return cellKey{cx: int(math.Floor(x / cellSize)), cy: int(math.Floor(y / cellSize))}
}

// Spawn creates an entity from the spec and returns its fresh ID. Sequence
// numbers advance monotonically so IDs are never reused within a session.
func (s *Store) Spawn(spec Spec) ID {
	s.nextSeq++
	id := ID(fmt.Sprintf("%s-%d", spec.Kind, s.nextSeq))

	maxHealth := spec.MaxHealth
	if maxHealth <= 0 {
		maxHealth = spec.Health
	}
	health := spec.Health
	if health <= 0 || health > maxHealth {
		health = maxHealth
	}
	radius := spec.Radius
	if radius <= 0 {
		radius = 0.4
	}
	facing := spec.Facing
	if facing == "" {
		facing = FacingDown
	}

	ent := &Entity{
		ID:            id,
		Seq:           s.nextSeq,
		Kind:          spec.Kind,
		Class:         spec.Class,
		Archetype:     spec.Archetype,
		Building:      spec.Building,
		OwnerID:       spec.OwnerID,
		X:             spec.X,
		Y:             spec.Y,
		Facing:        facing,
		Health:        health,
		MaxHealth:     maxHealth,
		Radius:        radius,
		Speed:         spec.Speed,
		Damage:        spec.Damage,
		VelX:          spec.VelX,
		VelY:          spec.VelY,
		ExpiresAtTick: spec.ExpiresAtTick,
	}
	s.entities[id] = ent
	s.indexAdd(id, ent.X, ent.Y)
	return id
}

// Get returns the live entity or ErrNotFound.
func (s *Store) Get(id ID) (*Entity, error) {
	ent, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ent, nil
}

// ApplyDamage reduces health, clamped at zero, and returns the result.
func (s *Store) ApplyDamage(id ID, amount int) (int, error) {
	ent, ok := s.entities[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if amount > 0 {
		ent.Health -= amount
		if ent.Health < 0 {
			ent.Health = 0
		}
	}
	return ent.Health, nil
}

// Heal raises health, clamped at max, and returns the result.
func (s *Store) Heal(id ID, amount int) (int, error) {
	ent, ok := s.entities[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if amount > 0 {
		ent.Health += amount
		if ent.Health > ent.MaxHealth {
			ent.Health = ent.MaxHealth
		}
	}
	return ent.Health, nil
}

// Remove deletes the entity. The ID is retired permanently.
func (s *Store) Remove(id ID) error {
	ent, ok := s.entities[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.indexRemove(id, ent.X, ent.Y)
	delete(s.entities, id)
	return nil
}

// SetPosition moves the entity and keeps the spatial index current.
func (s *Store) SetPosition(id ID, x, y float64) error {
	ent, ok := s.entities[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if keyFor(ent.X, ent.Y) != keyFor(x, y) {
		s.indexRemove(id, ent.X, ent.Y)
		s.indexAdd(id, x, y)
	}
	ent.X = x
	ent.Y = y
	return nil
}

// Len reports the number of live entities.
func (s *Store) Len() int { return len(s.entities) }

// All returns every live entity ordered by spawn sequence. The fixed order is
// load-bearing: physics and AI iterate it to stay deterministic.
func (s *Store) All() []*Entity {
	out := make([]*Entity, 0, len(s.entities))
	for _, ent := range s.entities {
		out = append(out, ent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// ByKind returns live entities of one kind in spawn order.
func (s *Store) ByKind(kind Kind) []*Entity {
	out := make([]*Entity, 0)
	for _, ent := range s.entities {
		if ent.Kind == kind {
			out = append(out, ent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// QueryInRadius returns IDs of entities within radius of (x, y), ordered by
// spawn sequence. Backed by the grid-bucket index so targeting stays cheap as
// the entity count grows.
func (s *Store) QueryInRadius(x, y, radius float64) []ID {
	if radius <= 0 {
		return nil
	}
	minKey := keyFor(x-radius, y-radius)
	maxKey := keyFor(x+radius, y+radius)
	found := make([]*Entity, 0)
	for cx := minKey.cx; cx <= maxKey.cx; cx++ {
		for cy := minKey.cy; cy <= maxKey.cy; cy++ {
			for id := range s.cells[cellKey{cx, cy}] {
				ent := s.entities[id]
				if ent == nil {
					continue
				}
				dx, dy := ent.X-x, ent.Y-y
				if dx*dx+dy*dy <= radius*radius {
					found = append(found, ent)
				}
			}
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Seq < found[j].Seq })
	ids := make([]ID, len(found))
	for i, ent := range found {
		ids[i] = ent.ID
	}
	return ids
}

func (s *Store) indexAdd(id ID, x, y float64) {
	key := keyFor(x, y)
	bucket, ok := s.cells[key]
	if !ok {
		bucket = make(map[ID]struct{})
		s.cells[key] = bucket
	}
	bucket[id] = struct{}{}
}

func (s *Store) indexRemove(id ID, x, y float64) {
	key := keyFor(x, y)
	if bucket, ok := s.cells[key]; ok {
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(s.cells, key)
		}
	}
}
