package graph

import (
	"fmt"
	"strings"
)

// UpsertEntity adds an entity or merges attrs into the existing one with the
// same identity. New values overwrite old ones per key; unrelated keys are
// kept. Upserting a stub clears its Incomplete flag.
func (g *Graph) UpsertEntity(t EntityType, key string, attrs Attributes) (EntityID, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: empty key for type %q", ErrInvalidKey, t)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.entityTypes[t] {
		return "", fmt.Errorf("%w: %q", ErrUnknownEntityType, t)
	}

	e := g.ensureEntityLocked(t, key)
	e.Incomplete = false
	if e.Attributes == nil {
		e.Attributes = make(Attributes, len(attrs))
	}
	e.Attributes.merge(attrs)
	e.UpdatedAt = g.now()
	return e.ID, nil
}

// ensureEntityLocked returns the entity for (t, key), creating an
// incomplete stub when missing. Must be called with g.mu held.
func (g *Graph) ensureEntityLocked(t EntityType, key string) *Entity {
	id := NewEntityID(t, key)
	if e, ok := g.entities[id]; ok {
		return e
	}

	now := g.now()
	e := &Entity{
		ID:         id,
		Type:       t,
		Key:        key,
		Attributes: make(Attributes),
		Incomplete: true,
		Seq:        g.nextSeq(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	g.entities[id] = e
	g.order = append(g.order, id)
	if _, seen := g.byType[t]; !seen {
		g.typeOrder = append(g.typeOrder, t)
	}
	g.byType[t] = append(g.byType[t], id)
	return e
}

// ensureStubLocked resolves id to an entity, creating a stub typed by the
// id's qualifier when missing. Must be called with g.mu held.
func (g *Graph) ensureStubLocked(id EntityID) (*Entity, error) {
	if e, ok := g.entities[id]; ok {
		return e, nil
	}
	t, key, err := ParseEntityID(id)
	if err != nil {
		return nil, err
	}
	if !g.entityTypes[t] {
		return nil, fmt.Errorf("%w: %q in id %q", ErrUnknownEntityType, t, id)
	}
	return g.ensureEntityLocked(t, key), nil
}

// GetEntity returns a copy of the entity with the given id.
func (g *Graph) GetEntity(id EntityID) (Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.getEntity(id)
}

func (g *Graph) getEntity(id EntityID) (Entity, bool) {
	e, ok := g.entities[id]
	if !ok {
		return Entity{}, false
	}
	return e.clone(), true
}

// ListEntitiesByType returns ids of the given type in creation order.
func (g *Graph) ListEntitiesByType(t EntityType) []EntityID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.listEntitiesByType(t)
}

func (g *Graph) listEntitiesByType(t EntityType) []EntityID {
	return append([]EntityID{}, g.byType[t]...)
}

// Entities returns copies of all entities in creation order.
func (g *Graph) Entities() []Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.allEntities()
}

func (g *Graph) allEntities() []Entity {
	out := make([]Entity, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.entities[id].clone())
	}
	return out
}
