package graph

import (
	"fmt"
	"strings"
)

// Attribute keys under which incident records are stored on their entity.
const (
	AttrPhenomenon         = "phenomenon"
	AttrRootCause          = "root_cause"
	AttrLocalizationMethod = "localization_method"
	AttrResolutionMethod   = "resolution_method"
)

// LoadHistoricalIncidents stores incident records as incident entities and
// returns their ids. Records without an id get the next free "case-NNN"
// key, never one already loaded or claimed by another record of the batch.
// A record whose explicit id is already loaded updates that incident.
// Records with an empty phenomenon are skipped and reported in the error;
// the rest are still loaded.
func (g *Graph) LoadHistoricalIncidents(records []Incident) ([]EntityID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.entityTypes[EntityIncident] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, EntityIncident)
	}

	var (
		ids     []EntityID
		skipped []int
	)
	claimed := make(map[string]bool)
	for _, rec := range records {
		if key := strings.TrimSpace(rec.ID); key != "" {
			claimed[key] = true
		}
	}
	seq := len(g.incidents)
	for i, rec := range records {
		if strings.TrimSpace(rec.Phenomenon) == "" {
			skipped = append(skipped, i)
			continue
		}
		key := strings.TrimSpace(rec.ID)
		if key == "" {
			key, seq = g.nextIncidentKeyLocked(seq, claimed)
			claimed[key] = true
		}
		e := g.ensureEntityLocked(EntityIncident, key)
		e.Incomplete = false
		e.Attributes.merge(Attributes{
			AttrPhenomenon:         String(rec.Phenomenon),
			AttrRootCause:          String(rec.RootCause),
			AttrLocalizationMethod: String(rec.LocalizationMethod),
			AttrResolutionMethod:   String(rec.ResolutionMethod),
		})
		e.UpdatedAt = g.now()
		if !containsID(g.incidents, e.ID) {
			g.incidents = append(g.incidents, e.ID)
		}
		ids = append(ids, e.ID)
	}

	if len(skipped) > 0 {
		return ids, fmt.Errorf("%w: %d incident record(s) without phenomenon at index %v", ErrInvalidKey, len(skipped), skipped)
	}
	return ids, nil
}

// nextIncidentKeyLocked returns the first "case-NNN" key after seq that
// names no entity and is not claimed, with its sequence number.
func (g *Graph) nextIncidentKeyLocked(seq int, claimed map[string]bool) (string, int) {
	for {
		seq++
		key := fmt.Sprintf("case-%03d", seq)
		if _, taken := g.entities[NewEntityID(EntityIncident, key)]; !taken && !claimed[key] {
			return key, seq
		}
	}
}

// Incidents returns the loaded historical incidents in load order.
func (g *Graph) Incidents() []Incident {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.allIncidents()
}

func (g *Graph) allIncidents() []Incident {
	out := make([]Incident, 0, len(g.incidents))
	for _, id := range g.incidents {
		e := g.entities[id]
		out = append(out, incidentFromEntity(e))
	}
	return out
}

func incidentFromEntity(e *Entity) Incident {
	str := func(k string) string {
		s, _ := e.Attributes[k].AsString()
		return s
	}
	return Incident{
		ID:                 e.Key,
		Phenomenon:         str(AttrPhenomenon),
		RootCause:          str(AttrRootCause),
		LocalizationMethod: str(AttrLocalizationMethod),
		ResolutionMethod:   str(AttrResolutionMethod),
	}
}

func containsID(ids []EntityID, id EntityID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
