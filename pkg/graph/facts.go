package graph

import (
	"errors"
	"fmt"
)

// FactKind discriminates the payload of a Fact.
type FactKind string

const (
	FactEntity       FactKind = "entity"
	FactRelationship FactKind = "relationship"
	FactIssue        FactKind = "issue"
)

// Fact is one unit of collector output in wire form. Probes emit batches of
// facts; Apply routes each to the matching mutator. Attributes are decoded
// loosely and converted with AttributesOf.
type Fact struct {
	Kind FactKind `json:"kind" yaml:"kind"`

	// entity
	Type EntityType `json:"type,omitempty" yaml:"type,omitempty"`
	Key  string     `json:"key,omitempty" yaml:"key,omitempty"`

	// relationship
	Source EntityID      `json:"source,omitempty" yaml:"source,omitempty"`
	Target EntityID      `json:"target,omitempty" yaml:"target,omitempty"`
	Label  RelationLabel `json:"label,omitempty" yaml:"label,omitempty"`

	// issue
	EntityID           EntityID `json:"entity_id,omitempty" yaml:"entity_id,omitempty"`
	Severity           Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
	Category           string   `json:"category,omitempty" yaml:"category,omitempty"`
	Message            string   `json:"message,omitempty" yaml:"message,omitempty"`
	Evidence           string   `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	PossibleCauses     []string `json:"possible_causes,omitempty" yaml:"possible_causes,omitempty"`
	RecommendedActions []string `json:"recommended_actions,omitempty" yaml:"recommended_actions,omitempty"`

	Attributes map[string]interface{} `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// ApplyResult reports what one Apply call changed.
type ApplyResult struct {
	Entities      []EntityID `json:"entities,omitempty"`
	Relationships int        `json:"relationships"`
	Issues        []string   `json:"issues,omitempty"`
}

// Apply ingests a single fact.
func (g *Graph) Apply(f Fact) (ApplyResult, error) {
	var res ApplyResult
	attrs, err := AttributesOf(f.Attributes)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrInvalidFact, err)
	}

	switch f.Kind {
	case FactEntity:
		id, err := g.UpsertEntity(f.Type, f.Key, attrs)
		if err != nil {
			return res, err
		}
		res.Entities = append(res.Entities, id)
	case FactRelationship:
		if f.Source == "" || f.Target == "" {
			return res, fmt.Errorf("%w: relationship needs source and target", ErrInvalidFact)
		}
		if err := g.AddRelationship(f.Source, f.Target, f.Label, attrs); err != nil {
			return res, err
		}
		res.Relationships++
	case FactIssue:
		id, err := g.RecordIssue(Issue{
			EntityID:           f.EntityID,
			Severity:           f.Severity,
			Category:           f.Category,
			Message:            f.Message,
			Evidence:           f.Evidence,
			PossibleCauses:     f.PossibleCauses,
			RecommendedActions: f.RecommendedActions,
		})
		if err != nil {
			return res, err
		}
		res.Issues = append(res.Issues, id)
	default:
		return res, fmt.Errorf("%w: unknown kind %q", ErrInvalidFact, f.Kind)
	}
	return res, nil
}

// ApplyBatch ingests facts in order. A failing fact does not stop the batch;
// all failures are joined into the returned error, each tagged with its
// index, and the result covers the facts that were applied.
func (g *Graph) ApplyBatch(facts []Fact) (ApplyResult, error) {
	var (
		total ApplyResult
		errs  []error
	)
	for i, f := range facts {
		res, err := g.Apply(f)
		if err != nil {
			errs = append(errs, fmt.Errorf("fact %d (%s): %w", i, f.Kind, err))
			continue
		}
		total.Entities = append(total.Entities, res.Entities...)
		total.Relationships += res.Relationships
		total.Issues = append(total.Issues, res.Issues...)
	}
	return total, errors.Join(errs...)
}
