package graph

import "fmt"

// Direction selects which edges a traversal follows.
type Direction string

const (
	DirectionBoth     Direction = "both"
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// ParseDirection normalises a direction string; "" means both.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", DirectionBoth:
		return DirectionBoth, nil
	case DirectionOutgoing, "out":
		return DirectionOutgoing, nil
	case DirectionIncoming, "in":
		return DirectionIncoming, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// DefaultMaxDepth bounds RelatedEntities when no depth is given.
const DefaultMaxDepth = 3

// TraversalOptions controls RelatedEntities and ShortestPath.
type TraversalOptions struct {
	MaxDepth  int
	Labels    []RelationLabel
	Direction Direction
}

// TraversalOption mutates TraversalOptions.
type TraversalOption func(*TraversalOptions)

// WithMaxDepth caps traversal depth. Depth 0 or less yields no results.
func WithMaxDepth(d int) TraversalOption {
	return func(o *TraversalOptions) { o.MaxDepth = d }
}

// WithLabels restricts traversal to edges carrying one of the labels.
func WithLabels(labels ...RelationLabel) TraversalOption {
	return func(o *TraversalOptions) { o.Labels = append(o.Labels, labels...) }
}

// WithDirection restricts traversal to one edge direction.
func WithDirection(d Direction) TraversalOption {
	return func(o *TraversalOptions) { o.Direction = d }
}

func applyTraversalOptions(defaultDir Direction, opts []TraversalOption) TraversalOptions {
	o := TraversalOptions{MaxDepth: DefaultMaxDepth, Direction: defaultDir}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Direction == "" {
		o.Direction = defaultDir
	}
	return o
}

// Related is one entity discovered by RelatedEntities.
type Related struct {
	ID    EntityID        `json:"id"`
	Depth int             `json:"depth"`
	Path  []RelationLabel `json:"path_labels"`
}

// RelatedEntities expands breadth-first from id, in both directions unless
// WithDirection says otherwise, up to the max depth (default 3). Results are
// in discovery order: for each visited entity its outgoing edges are
// expanded before its incoming edges, each in insertion order. The start
// entity is never part of the result.
func (g *Graph) RelatedEntities(id EntityID, opts ...TraversalOption) ([]Related, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.relatedEntities(id, opts...)
}

func (g *Graph) relatedEntities(id EntityID, opts ...TraversalOption) ([]Related, error) {
	if _, ok := g.entities[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	o := applyTraversalOptions(DirectionBoth, opts)
	result := make([]Related, 0)
	if o.MaxDepth <= 0 {
		return result, nil
	}

	type queueItem struct {
		id    EntityID
		depth int
		path  []RelationLabel
	}
	visited := map[EntityID]bool{id: true}
	queue := []queueItem{{id: id}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.depth >= o.MaxDepth {
			continue
		}
		g.eachNeighbor(item.id, o.Direction, o.Labels, func(next EntityID, label RelationLabel) bool {
			if visited[next] {
				return true // cycle or already reached at a shallower depth
			}
			visited[next] = true
			path := make([]RelationLabel, len(item.path)+1)
			copy(path, item.path)
			path[len(item.path)] = label
			result = append(result, Related{ID: next, Depth: item.depth + 1, Path: path})
			queue = append(queue, queueItem{id: next, depth: item.depth + 1, path: path})
			return true
		})
	}
	return result, nil
}

// ShortestPath returns a minimum-hop path from source to target following
// outgoing edges, or edges in both directions with
// WithDirection(DirectionBoth). Unlike RelatedEntities it defaults to
// outgoing: a path then reads as a dependency chain (pod -> pvc -> pv ->
// drive), so for A->B->C a path C to A exists only with DirectionBoth, which
// makes existence symmetric over the undirected graph. The graph is unweighted, so when several
// shortest paths exist this is the first one discovered in edge insertion
// order, not a canonical one. ok is false when either endpoint is unknown or
// no path exists; that is an expected outcome, not an error. Depth options
// are ignored.
func (g *Graph) ShortestPath(source, target EntityID, opts ...TraversalOption) (path []EntityID, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.shortestPath(source, target, opts...)
}

func (g *Graph) shortestPath(source, target EntityID, opts ...TraversalOption) ([]EntityID, bool) {
	if _, ok := g.entities[source]; !ok {
		return nil, false
	}
	if _, ok := g.entities[target]; !ok {
		return nil, false
	}
	if source == target {
		return []EntityID{source}, true
	}
	o := applyTraversalOptions(DirectionOutgoing, opts)

	parent := make(map[EntityID]EntityID)
	visited := map[EntityID]bool{source: true}
	queue := []EntityID{source}
	found := false

	for len(queue) > 0 && !found {
		current := queue[0]
		queue = queue[1:]
		g.eachNeighbor(current, o.Direction, o.Labels, func(next EntityID, _ RelationLabel) bool {
			if visited[next] {
				return true
			}
			visited[next] = true
			parent[next] = current
			if next == target {
				found = true
				return false
			}
			queue = append(queue, next)
			return true
		})
	}
	if !found {
		return nil, false
	}

	path := []EntityID{target}
	for cur := target; cur != source; {
		cur = parent[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, true
}

// Reachable returns every entity reachable from id within maxDepth hops in
// the given direction, mapped to its hop distance. id itself is excluded.
// maxDepth <= 0 means unbounded (the graph is finite).
func (g *Graph) Reachable(id EntityID, dir Direction, maxDepth int, labels ...RelationLabel) map[EntityID]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reachable(id, dir, maxDepth, labels...)
}

func (g *Graph) reachable(id EntityID, dir Direction, maxDepth int, labels ...RelationLabel) map[EntityID]int {
	dist := make(map[EntityID]int)
	if _, ok := g.entities[id]; !ok {
		return dist
	}
	visited := map[EntityID]bool{id: true}
	frontier := []EntityID{id}
	for depth := 1; len(frontier) > 0 && (maxDepth <= 0 || depth <= maxDepth); depth++ {
		var next []EntityID
		for _, cur := range frontier {
			g.eachNeighbor(cur, dir, labels, func(n EntityID, _ RelationLabel) bool {
				if !visited[n] {
					visited[n] = true
					dist[n] = depth
					next = append(next, n)
				}
				return true
			})
		}
		frontier = next
	}
	return dist
}

// eachNeighbor calls fn for every neighbour of id reachable through one edge
// in the given direction, outgoing edges first. Iteration stops when fn
// returns false.
func (g *Graph) eachNeighbor(id EntityID, dir Direction, labels []RelationLabel, fn func(EntityID, RelationLabel) bool) {
	if dir == DirectionBoth || dir == DirectionOutgoing {
		for _, rel := range g.out[id] {
			if !labelAllowed(rel.Label, labels) {
				continue
			}
			if !fn(rel.Target, rel.Label) {
				return
			}
		}
	}
	if dir == DirectionBoth || dir == DirectionIncoming {
		for _, rel := range g.in[id] {
			if !labelAllowed(rel.Label, labels) {
				continue
			}
			if !fn(rel.Source, rel.Label) {
				return
			}
		}
	}
}
