package schema

import (
	"sync"
	"sync/atomic"

	"github.com/conduit-lang/admin/internal/orm/errs"
)

// Dependency is a relationship on another entity whose foreign key points at
// a given entity
type Dependency struct {
	Entity       *EntityMetadata
	Relationship *RelationshipMetadata
	// Inverse is the one-to-many or inverse one-to-one declared on the
	// referenced entity with MappedBy == Relationship.Name, if any
	Inverse *RelationshipMetadata
}

// Policy returns the effective cascade policy of the dependency. A policy
// declared on the inverse side wins over the owning side's.
func (d Dependency) Policy() CascadePolicy {
	if d.Inverse != nil && d.Inverse.Cascade != CascadeNone {
		return d.Inverse.Cascade
	}
	return d.Relationship.Cascade
}

// Registry holds the metadata of every entity. It is built once during
// startup and frozen; once frozen it can be read concurrently without locking.
type Registry struct {
	mu         sync.Mutex
	entities   map[string]*EntityMetadata
	order      []string
	dependents map[string][]Dependency
	frozen     atomic.Bool
	validator  *Validator
}

// NewRegistry creates a new, unfrozen registry
func NewRegistry() *Registry {
	return &Registry{
		entities:   make(map[string]*EntityMetadata),
		dependents: make(map[string][]Dependency),
		validator:  NewValidator(),
	}
}

// Build registers the given entities in order and freezes the registry
func Build(entities ...*EntityMetadata) (*Registry, error) {
	r := NewRegistry()
	for _, e := range entities {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	if err := r.Freeze(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds an entity. Structural invariants are checked immediately;
// cross-entity checks are deferred to Freeze so forward references work.
func (r *Registry) Register(entity *EntityMetadata) error {
	if r.frozen.Load() {
		return &errs.ImmutableStateError{Op: "register " + entity.Name}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[entity.Name]; exists {
		return errs.Schemaf(entity.Name, "", "entity is already registered")
	}

	// A rejected entity is left as the caller passed it
	table := entity.TableName
	if table == "" {
		table = TableNameFor(entity.Name)
	}
	candidate := *entity
	candidate.TableName = table
	if err := r.validator.ValidateEntity(&candidate); err != nil {
		return err
	}

	entity.TableName = table
	entity.index()
	r.entities[entity.Name] = entity
	r.order = append(r.order, entity.Name)
	return nil
}

// Freeze validates relationships across all entities, builds the reverse
// dependency index and makes the registry read-only
func (r *Registry) Freeze() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return &errs.ImmutableStateError{Op: "freeze"}
	}

	if err := r.validator.ValidateRelationships(r.entities, r.order); err != nil {
		return err
	}

	for _, name := range r.order {
		owner := r.entities[name]
		for _, rel := range owner.Relationships {
			if !rel.CarriesForeignKey() {
				continue
			}
			dep := Dependency{Entity: owner, Relationship: rel}
			target := r.entities[rel.Target]
			for _, inv := range target.Relationships {
				if inv.MappedBy == rel.Name && inv.Target == owner.Name {
					dep.Inverse = inv
					break
				}
			}
			r.dependents[rel.Target] = append(r.dependents[rel.Target], dep)
		}
	}

	r.frozen.Store(true)
	return nil
}

// Frozen returns true once Freeze has succeeded
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Get retrieves entity metadata by name
func (r *Registry) Get(name string) (*EntityMetadata, error) {
	entity, ok := r.entities[name]
	if !ok {
		return nil, &errs.NotFoundError{Entity: name}
	}
	return entity, nil
}

// Exists checks if an entity is registered
func (r *Registry) Exists(name string) bool {
	_, ok := r.entities[name]
	return ok
}

// Names returns the registered entity names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All returns the registered entities in registration order
func (r *Registry) All() []*EntityMetadata {
	result := make([]*EntityMetadata, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.entities[name])
	}
	return result
}

// Count returns the number of registered entities
func (r *Registry) Count() int {
	return len(r.order)
}

// Dependents returns the foreign-key relationships pointing at an entity
func (r *Registry) Dependents(name string) []Dependency {
	return r.dependents[name]
}

// DependencyOrder returns entities with referenced entities before the
// entities that reference them
func (r *Registry) DependencyOrder() ([]string, error) {
	return NewRelationshipGraph(r.All()).TopologicalSort()
}

// RegistryStats summarizes the registry contents
type RegistryStats struct {
	TotalEntities        int
	TotalFields          int
	TotalRelationships   int
	RelationshipsByKind  map[RelationKind]int
	VersionedEntities    int
	CircularDependencies bool
}

// Stats returns statistics about the registry
func (r *Registry) Stats() *RegistryStats {
	stats := &RegistryStats{
		RelationshipsByKind: make(map[RelationKind]int),
	}
	all := r.All()
	stats.TotalEntities = len(all)

	for _, e := range all {
		stats.TotalFields += len(e.Fields)
		stats.TotalRelationships += len(e.Relationships)
		for _, rel := range e.Relationships {
			stats.RelationshipsByKind[rel.Kind]++
		}
		if e.VersionField != "" {
			stats.VersionedEntities++
		}
	}

	stats.CircularDependencies = len(NewRelationshipGraph(all).DetectCycles()) > 0
	return stats
}
