package graph

import (
	"fmt"
	"strings"
	"time"
)

// EntityType represents the semantic type of a node in the diagnostic graph.
type EntityType string

const (
	EntityPod          EntityType = "pod"          // Compute unit
	EntityPVC          EntityType = "pvc"          // Volume claim
	EntityPV           EntityType = "pv"           // Volume
	EntityVolumeGroup  EntityType = "vg"           // Logical volume group
	EntityDrive        EntityType = "drive"        // Physical drive
	EntityNode         EntityType = "node"         // Cluster node
	EntityStorageClass EntityType = "storageclass" // Storage-class configuration
	EntityPool         EntityType = "pool"         // Capacity pool
	EntitySystem       EntityType = "system"       // System facility (kubelet, csi driver, ...)
	EntityIncident     EntityType = "incident"     // Historical incident record
)

// DefaultEntityTypes is the built-in entity vocabulary.
var DefaultEntityTypes = []EntityType{
	EntityPod, EntityPVC, EntityPV, EntityVolumeGroup, EntityDrive,
	EntityNode, EntityStorageClass, EntityPool, EntitySystem, EntityIncident,
}

// RelationLabel represents the semantic relationship between two entities.
type RelationLabel string

const (
	RelUses        RelationLabel = "uses"         // Pod -> PVC
	RelBoundTo     RelationLabel = "bound_to"     // PVC -> PV
	RelMapsTo      RelationLabel = "maps_to"      // PV -> VG/Drive
	RelLocatedOn   RelationLabel = "located_on"   // Drive/Pod -> Node
	RelContains    RelationLabel = "contains"     // VG -> Drive, Pool -> Drive
	RelAvailableOn RelationLabel = "available_on" // Pool/StorageClass -> Node
	RelAffinityTo  RelationLabel = "affinity_to"  // PV -> Node
	RelMatches     RelationLabel = "matches"      // Entity -> Incident
)

// DefaultRelationLabels is the built-in relationship vocabulary.
var DefaultRelationLabels = []RelationLabel{
	RelUses, RelBoundTo, RelMapsTo, RelLocatedOn, RelContains,
	RelAvailableOn, RelAffinityTo, RelMatches,
}

// EntityID is the canonical "<type>:<key>" identifier of an entity.
type EntityID string

// NewEntityID builds the canonical id for a type and natural key.
func NewEntityID(t EntityType, key string) EntityID {
	return EntityID(string(t) + ":" + key)
}

// ParseEntityID splits an id into its type qualifier and natural key.
// Keys may themselves contain ':'; only the first separator counts.
func ParseEntityID(id EntityID) (EntityType, string, error) {
	s := string(id)
	idx := strings.IndexByte(s, ':')
	if idx <= 0 {
		return "", "", fmt.Errorf("%w: id %q has no type qualifier", ErrUnknownEntityType, s)
	}
	key := s[idx+1:]
	if strings.TrimSpace(key) == "" {
		return "", "", fmt.Errorf("%w: id %q has an empty key", ErrInvalidKey, s)
	}
	return EntityType(s[:idx]), key, nil
}

// Type returns the type qualifier of the id, or "" if it has none.
func (id EntityID) Type() EntityType {
	t, _, err := ParseEntityID(id)
	if err != nil {
		return ""
	}
	return t
}

// Entity is a vertex in the diagnostic graph.
type Entity struct {
	ID         EntityID   `json:"id"`
	Type       EntityType `json:"type"`
	Key        string     `json:"key"`
	Attributes Attributes `json:"attributes,omitempty"`
	// Incomplete marks stubs created because a relationship or issue
	// referenced the entity before any collector described it.
	Incomplete bool      `json:"incomplete,omitempty"`
	Seq        uint64    `json:"seq"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (e *Entity) clone() Entity {
	c := *e
	c.Attributes = e.Attributes.Clone()
	return c
}

// Relationship represents a directed, labelled connection between two entities.
type Relationship struct {
	Source     EntityID      `json:"source"`
	Target     EntityID      `json:"target"`
	Label      RelationLabel `json:"label"`
	Attributes Attributes    `json:"attributes,omitempty"`
	Seq        uint64        `json:"seq"`
}

func (r *Relationship) clone() Relationship {
	c := *r
	c.Attributes = r.Attributes.Clone()
	return c
}

// Neighbor is one end of a relationship seen from the other end.
type Neighbor struct {
	ID         EntityID      `json:"id"`
	Label      RelationLabel `json:"label"`
	Attributes Attributes    `json:"attributes,omitempty"`
}

// Severity grades an issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists the severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Rank orders severities; higher is more severe. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// ParseSeverity normalises a severity string.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
	}
	return sev, nil
}

// Issue is a detected problem bound to one entity.
type Issue struct {
	ID                 string    `json:"id"`
	EntityID           EntityID  `json:"entity_id"`
	Severity           Severity  `json:"severity"`
	Category           string    `json:"category"`
	Message            string    `json:"message"`
	Evidence           string    `json:"evidence,omitempty"`
	PossibleCauses     []string  `json:"possible_causes,omitempty"`
	RecommendedActions []string  `json:"recommended_actions,omitempty"`
	DetectedAt         time.Time `json:"detected_at"`
	Seq                uint64    `json:"seq"`
}

func (i *Issue) clone() Issue {
	c := *i
	c.PossibleCauses = append([]string(nil), i.PossibleCauses...)
	c.RecommendedActions = append([]string(nil), i.RecommendedActions...)
	return c
}

// IssueFilter restricts AllIssues. Empty slices match everything.
type IssueFilter struct {
	Severities []Severity
	Categories []string
}

func (f IssueFilter) match(i *Issue) bool {
	if len(f.Severities) > 0 {
		ok := false
		for _, s := range f.Severities {
			if s == i.Severity {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Categories) > 0 {
		ok := false
		for _, c := range f.Categories {
			if strings.EqualFold(c, i.Category) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Incident is a historical incident record used to bias root-cause ranking.
type Incident struct {
	ID                 string `json:"id,omitempty" yaml:"id,omitempty"`
	Phenomenon         string `json:"phenomenon" yaml:"phenomenon"`
	RootCause          string `json:"root_cause" yaml:"root_cause"`
	LocalizationMethod string `json:"localization_method" yaml:"localization_method"`
	ResolutionMethod   string `json:"resolution_method" yaml:"resolution_method"`
}

// Phase is the collection-run lifecycle state of a graph.
type Phase string

const (
	PhaseEmpty      Phase = "empty"
	PhasePopulating Phase = "populating"
	PhaseQueryable  Phase = "queryable"
)
