package graph

import "fmt"

// AddRelationship records a directed edge. Missing endpoints are created as
// incomplete stubs typed by their id qualifier. Re-adding the same
// (source, target, label) merges attributes instead of duplicating the edge.
func (g *Graph) AddRelationship(source, target EntityID, label RelationLabel, attrs Attributes) error {
	if label == "" {
		return fmt.Errorf("%w: empty label", ErrUnknownRelationType)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.strict && !g.labels[label] {
		return fmt.Errorf("%w: %q", ErrUnknownRelationType, label)
	}

	// Validate both ids before creating anything so a bad target does not
	// leave a dangling source stub behind.
	for _, id := range []EntityID{source, target} {
		if _, ok := g.entities[id]; ok {
			continue
		}
		t, _, err := ParseEntityID(id)
		if err != nil {
			return err
		}
		if !g.entityTypes[t] {
			return fmt.Errorf("%w: %q in id %q", ErrUnknownEntityType, t, id)
		}
	}
	if _, err := g.ensureStubLocked(source); err != nil {
		return err
	}
	if _, err := g.ensureStubLocked(target); err != nil {
		return err
	}

	key := edgeKey{source: source, target: target, label: label}
	if existing, ok := g.edgeIndex[key]; ok {
		existing.Attributes.merge(attrs)
		return nil
	}

	rel := &Relationship{
		Source:     source,
		Target:     target,
		Label:      label,
		Attributes: make(Attributes, len(attrs)),
		Seq:        g.nextSeq(),
	}
	rel.Attributes.merge(attrs)

	g.edgeIndex[key] = rel
	g.edges = append(g.edges, rel)
	g.out[source] = append(g.out[source], rel)
	g.in[target] = append(g.in[target], rel)
	return nil
}

// Outgoing returns the targets of edges leaving id, in insertion order,
// optionally restricted to the given labels.
func (g *Graph) Outgoing(id EntityID, labels ...RelationLabel) []Neighbor {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.outgoing(id, labels...)
}

func (g *Graph) outgoing(id EntityID, labels ...RelationLabel) []Neighbor {
	out := make([]Neighbor, 0, len(g.out[id]))
	for _, rel := range g.out[id] {
		if !labelAllowed(rel.Label, labels) {
			continue
		}
		out = append(out, Neighbor{ID: rel.Target, Label: rel.Label, Attributes: rel.Attributes.Clone()})
	}
	return out
}

// Incoming returns the sources of edges entering id, in insertion order,
// optionally restricted to the given labels.
func (g *Graph) Incoming(id EntityID, labels ...RelationLabel) []Neighbor {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.incoming(id, labels...)
}

func (g *Graph) incoming(id EntityID, labels ...RelationLabel) []Neighbor {
	out := make([]Neighbor, 0, len(g.in[id]))
	for _, rel := range g.in[id] {
		if !labelAllowed(rel.Label, labels) {
			continue
		}
		out = append(out, Neighbor{ID: rel.Source, Label: rel.Label, Attributes: rel.Attributes.Clone()})
	}
	return out
}

// Relationships returns copies of all edges in insertion order.
func (g *Graph) Relationships() []Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.allRelationships()
}

func (g *Graph) allRelationships() []Relationship {
	out := make([]Relationship, 0, len(g.edges))
	for _, rel := range g.edges {
		out = append(out, rel.clone())
	}
	return out
}

func labelAllowed(l RelationLabel, filter []RelationLabel) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == l {
			return true
		}
	}
	return false
}
