package engine

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/diagraph/pkg/graph"
)

// ReachDirection selects which entities count toward a candidate's reach.
type ReachDirection string

const (
	// ReachDependents counts entities that depend on the candidate, i.e.
	// those that reach it through outgoing edges. A drive used by a pod
	// through pvc and pv gains reach from all three.
	ReachDependents ReachDirection = "dependents"
	// ReachDependencies counts entities the candidate reaches through its
	// own outgoing edges.
	ReachDependencies ReachDirection = "dependencies"
	// ReachBoth counts both.
	ReachBoth ReachDirection = "both"
)

func (d ReachDirection) graphDirection() graph.Direction {
	switch d {
	case ReachDependencies:
		return graph.DirectionOutgoing
	case ReachBoth:
		return graph.DirectionBoth
	default:
		return graph.DirectionIncoming
	}
}

// AnalysisConfig tunes root-cause scoring and fix planning.
type AnalysisConfig struct {
	MaxDepth           int                        `yaml:"max_depth" json:"max_depth"`
	Decay              float64                    `yaml:"decay" json:"decay"`
	SeverityWeights    map[graph.Severity]float64 `yaml:"severity_weights" json:"severity_weights"`
	IncidentBonus      float64                    `yaml:"incident_bonus" json:"incident_bonus"`
	SecondaryFraction  float64                    `yaml:"secondary_fraction" json:"secondary_fraction"`
	MatchThreshold     float64                    `yaml:"match_threshold" json:"match_threshold"`
	ReachDirection     ReachDirection             `yaml:"reach_direction" json:"reach_direction"`
	MaxSupportingPaths int                        `yaml:"max_supporting_paths" json:"max_supporting_paths"`
}

// DefaultConfig returns the stock scoring parameters.
func DefaultConfig() AnalysisConfig {
	return AnalysisConfig{
		MaxDepth: 4,
		Decay:    0.5,
		SeverityWeights: map[graph.Severity]float64{
			graph.SeverityCritical: 100,
			graph.SeverityHigh:     50,
			graph.SeverityMedium:   10,
			graph.SeverityLow:      1,
		},
		IncidentBonus:      20,
		SecondaryFraction:  0.4,
		MatchThreshold:     0.3,
		ReachDirection:     ReachDependents,
		MaxSupportingPaths: 5,
	}
}

// LoadConfig reads a YAML analysis config. Fields left out keep their
// defaults; a missing file yields the defaults.
func LoadConfig(path string) (AnalysisConfig, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}

	var file AnalysisConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse analysis config %s: %w", path, err)
	}
	cfg = cfg.overlay(file)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("analysis config %s: %w", path, err)
	}
	return cfg, nil
}

func (c AnalysisConfig) overlay(o AnalysisConfig) AnalysisConfig {
	if o.MaxDepth != 0 {
		c.MaxDepth = o.MaxDepth
	}
	if o.Decay != 0 {
		c.Decay = o.Decay
	}
	if len(o.SeverityWeights) > 0 {
		weights := make(map[graph.Severity]float64, len(c.SeverityWeights))
		for k, v := range c.SeverityWeights {
			weights[k] = v
		}
		for k, v := range o.SeverityWeights {
			weights[k] = v
		}
		c.SeverityWeights = weights
	}
	if o.IncidentBonus != 0 {
		c.IncidentBonus = o.IncidentBonus
	}
	if o.SecondaryFraction != 0 {
		c.SecondaryFraction = o.SecondaryFraction
	}
	if o.MatchThreshold != 0 {
		c.MatchThreshold = o.MatchThreshold
	}
	if o.ReachDirection != "" {
		c.ReachDirection = o.ReachDirection
	}
	if o.MaxSupportingPaths != 0 {
		c.MaxSupportingPaths = o.MaxSupportingPaths
	}
	return c
}

// Validate rejects configs the analyzer cannot use.
func (c AnalysisConfig) Validate() error {
	if c.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be >= 1, got %d", c.MaxDepth)
	}
	if c.Decay <= 0 || c.Decay > 1 {
		return fmt.Errorf("decay must be in (0,1], got %v", c.Decay)
	}
	if c.SecondaryFraction < 0 || c.SecondaryFraction > 1 {
		return fmt.Errorf("secondary_fraction must be in [0,1], got %v", c.SecondaryFraction)
	}
	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match_threshold must be in [0,1], got %v", c.MatchThreshold)
	}
	for sev := range c.SeverityWeights {
		if !sev.Valid() {
			return fmt.Errorf("%w: %q in severity_weights", graph.ErrInvalidSeverity, sev)
		}
	}
	switch c.ReachDirection {
	case ReachDependents, ReachDependencies, ReachBoth:
	default:
		return fmt.Errorf("unknown reach_direction %q", c.ReachDirection)
	}
	return nil
}
