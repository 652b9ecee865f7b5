package graph

// EntityStore is the entity half of the graph.
type EntityStore interface {
	UpsertEntity(t EntityType, key string, attrs Attributes) (EntityID, error)
	GetEntity(id EntityID) (Entity, bool)
	ListEntitiesByType(t EntityType) []EntityID
}

// RelationshipStore records and resolves directed edges.
type RelationshipStore interface {
	AddRelationship(source, target EntityID, label RelationLabel, attrs Attributes) error
	Outgoing(id EntityID, labels ...RelationLabel) []Neighbor
	Incoming(id EntityID, labels ...RelationLabel) []Neighbor
}

// IssueLedger records issues against entities.
type IssueLedger interface {
	RecordIssue(issue Issue) (string, error)
	IssuesFor(id EntityID) []Issue
	AllIssues(filter IssueFilter) []Issue
}

// Traverser answers reachability queries.
type Traverser interface {
	RelatedEntities(id EntityID, opts ...TraversalOption) ([]Related, error)
	ShortestPath(source, target EntityID, opts ...TraversalOption) ([]EntityID, bool)
}

// Reader is the read-only surface shared by *Graph and the snapshot handed to
// View callbacks. The analyzer and planner only need a Reader.
type Reader interface {
	GetEntity(id EntityID) (Entity, bool)
	ListEntitiesByType(t EntityType) []EntityID
	Entities() []Entity
	Outgoing(id EntityID, labels ...RelationLabel) []Neighbor
	Incoming(id EntityID, labels ...RelationLabel) []Neighbor
	Relationships() []Relationship
	IssuesFor(id EntityID) []Issue
	AllIssues(filter IssueFilter) []Issue
	Incidents() []Incident
	RelatedEntities(id EntityID, opts ...TraversalOption) ([]Related, error)
	ShortestPath(source, target EntityID, opts ...TraversalOption) ([]EntityID, bool)
	Reachable(id EntityID, dir Direction, maxDepth int, labels ...RelationLabel) map[EntityID]int
	Summary() Summary
	Phase() Phase
}

var (
	_ EntityStore       = (*Graph)(nil)
	_ RelationshipStore = (*Graph)(nil)
	_ IssueLedger       = (*Graph)(nil)
	_ Traverser         = (*Graph)(nil)
	_ Reader            = (*Graph)(nil)
	_ Reader            = view{}
)

// view reads g without taking locks; View holds the read lock for it.
type view struct {
	g *Graph
}

func (v view) GetEntity(id EntityID) (Entity, bool) { return v.g.getEntity(id) }
func (v view) ListEntitiesByType(t EntityType) []EntityID { return v.g.listEntitiesByType(t) }
func (v view) Entities() []Entity { return v.g.allEntities() }
func (v view) Relationships() []Relationship { return v.g.allRelationships() }
func (v view) IssuesFor(id EntityID) []Issue { return v.g.issuesFor(id) }
func (v view) AllIssues(filter IssueFilter) []Issue { return v.g.allIssues(filter) }
func (v view) Incidents() []Incident { return v.g.allIncidents() }
func (v view) Summary() Summary { return v.g.summary() }
func (v view) Phase() Phase { return v.g.phase() }

func (v view) Outgoing(id EntityID, labels ...RelationLabel) []Neighbor {
	return v.g.outgoing(id, labels...)
}

func (v view) Incoming(id EntityID, labels ...RelationLabel) []Neighbor {
	return v.g.incoming(id, labels...)
}

func (v view) RelatedEntities(id EntityID, opts ...TraversalOption) ([]Related, error) {
	return v.g.relatedEntities(id, opts...)
}

func (v view) ShortestPath(source, target EntityID, opts ...TraversalOption) ([]EntityID, bool) {
	return v.g.shortestPath(source, target, opts...)
}

func (v view) Reachable(id EntityID, dir Direction, maxDepth int, labels ...RelationLabel) map[EntityID]int {
	return v.g.reachable(id, dir, maxDepth, labels...)
}
