// Package graph is the diagnostic knowledge graph: a typed entity store, a
// directed relationship store layered on it, an issue ledger, and bounded
// traversal queries.
//
// # Thread Safety
//
// A Graph is safe for concurrent use. Mutations (UpsertEntity,
// AddRelationship, RecordIssue, LoadHistoricalIncidents) serialise behind a
// single write lock; queries share a read lock. Callers that need several
// queries against one consistent state use View.
//
// # Lifecycle
//
// A graph lives for one investigation run. It starts Empty, is Populating
// while probes registered through StartProbe are in flight, and is
// Queryable otherwise. Queries never wait for a particular phase.
package graph

import (
	"sync"
	"time"
)

type edgeKey struct {
	source EntityID
	target EntityID
	label  RelationLabel
}

// Option configures a Graph.
type Option func(*Graph)

// WithStrictRelations rejects relationship labels outside the vocabulary.
func WithStrictRelations(strict bool) Option {
	return func(g *Graph) { g.strict = strict }
}

// WithEntityTypes extends the entity vocabulary.
func WithEntityTypes(types ...EntityType) Option {
	return func(g *Graph) {
		for _, t := range types {
			g.entityTypes[t] = true
		}
	}
}

// WithRelationLabels extends the relationship vocabulary.
func WithRelationLabels(labels ...RelationLabel) Option {
	return func(g *Graph) {
		for _, l := range labels {
			g.labels[l] = true
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Graph) { g.now = now }
}

// Graph is the in-memory diagnostic knowledge graph for one run.
type Graph struct {
	mu     sync.RWMutex
	strict bool
	now    func() time.Time

	entityTypes map[EntityType]bool
	labels      map[RelationLabel]bool

	seq       uint64
	entities  map[EntityID]*Entity
	order     []EntityID
	byType    map[EntityType][]EntityID
	typeOrder []EntityType

	edges     []*Relationship
	edgeIndex map[edgeKey]*Relationship
	out       map[EntityID][]*Relationship
	in        map[EntityID][]*Relationship

	issueSeq       uint64
	issues         []*Issue
	issuesByEntity map[EntityID][]*Issue

	incidents []EntityID
	probes    int
}

// New creates an empty graph with the built-in vocabularies.
func New(opts ...Option) *Graph {
	g := &Graph{
		now:            time.Now,
		entityTypes:    make(map[EntityType]bool),
		labels:         make(map[RelationLabel]bool),
		entities:       make(map[EntityID]*Entity),
		byType:         make(map[EntityType][]EntityID),
		edgeIndex:      make(map[edgeKey]*Relationship),
		out:            make(map[EntityID][]*Relationship),
		in:             make(map[EntityID][]*Relationship),
		issuesByEntity: make(map[EntityID][]*Issue),
	}
	for _, t := range DefaultEntityTypes {
		g.entityTypes[t] = true
	}
	for _, l := range DefaultRelationLabels {
		g.labels[l] = true
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Strict reports whether unknown relationship labels are rejected.
func (g *Graph) Strict() bool {
	return g.strict
}

// KnownEntityType reports whether t is in the vocabulary.
func (g *Graph) KnownEntityType(t EntityType) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.entityTypes[t]
}

// StartProbe marks a probe as in flight and returns the function that marks
// it finished. The returned function is idempotent.
func (g *Graph) StartProbe() (done func()) {
	g.mu.Lock()
	g.probes++
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.probes--
			g.mu.Unlock()
		})
	}
}

// Phase returns the current collection-run lifecycle state.
func (g *Graph) Phase() Phase {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.phase()
}

func (g *Graph) phase() Phase {
	switch {
	case g.probes > 0:
		return PhasePopulating
	case len(g.entities) == 0:
		return PhaseEmpty
	default:
		return PhaseQueryable
	}
}

// View runs fn against a consistent snapshot of the graph. fn must not call
// mutating methods on g.
func (g *Graph) View(fn func(r Reader)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(view{g: g})
}

func (g *Graph) nextSeq() uint64 {
	g.seq++
	return g.seq
}
