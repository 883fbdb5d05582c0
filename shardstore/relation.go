package shardstore

import (
	"strings"

	"github.com/hlsf/lattice/core"
)

// Family groups relation kinds into coarse semantic families. Exporters and
// tooling use families to bucket edges; the store itself treats relation
// kinds as opaque.
type Family string

const (
	FamilySpatial        Family = "spatial"
	FamilyTemporal       Family = "temporal"
	FamilyCausal         Family = "causal"
	FamilyHierarchical   Family = "hierarchical"
	FamilyAnalogical     Family = "analogical"
	FamilyConstraint     Family = "constraint"
	FamilyValue          Family = "value"
	FamilyCommunicative  Family = "communicative"
	FamilySocial         Family = "social"
	FamilyModal          Family = "modal"
	FamilyEvidential     Family = "evidential"
	FamilyCounterfactual Family = "counterfactual"
	FamilyOperational    Family = "operational"
	FamilyMeasurement    Family = "measurement"
	FamilyAesthetic      Family = "aesthetic"
)

// Well-known relation kinds. The wire format only carries the small-int
// kind; names exist for classification and export.
const (
	RelAdjacency core.RelationType = iota
	RelProximity
	RelContainment
	RelOverlap
	RelPath
	RelBefore
	RelAfter
	RelDuring
	RelCause
	RelEffect
	RelEnablement
	RelInhibition
	RelSeedExpansion
	RelModifier
	RelSelfSymbol
)

var relationNames = map[core.RelationType]string{
	RelAdjacency:     "adjacency",
	RelProximity:     "proximity",
	RelContainment:   "containment",
	RelOverlap:       "overlap",
	RelPath:          "path",
	RelBefore:        "before",
	RelAfter:         "after",
	RelDuring:        "during",
	RelCause:         "cause",
	RelEffect:        "effect",
	RelEnablement:    "enablement",
	RelInhibition:    "inhibition",
	RelSeedExpansion: "seed-expansion",
	RelModifier:      "modifier",
	RelSelfSymbol:    "self:symbol",
}

var relationFamilies = map[string]Family{
	"proximity":      FamilySpatial,
	"containment":    FamilySpatial,
	"overlap":        FamilySpatial,
	"path":           FamilySpatial,
	"barrier":        FamilySpatial,
	"before":         FamilyTemporal,
	"after":          FamilyTemporal,
	"during":         FamilyTemporal,
	"recurrence":     FamilyTemporal,
	"cause":          FamilyCausal,
	"effect":         FamilyCausal,
	"enablement":     FamilyCausal,
	"inhibition":     FamilyCausal,
	"seed-expansion": FamilyOperational,
	"self:symbol":    FamilyAesthetic,
}

// RelationName returns the canonical name for a relation kind, or "" for
// unknown kinds.
func RelationName(t core.RelationType) string {
	return relationNames[t]
}

// ClassifyRelation maps a relation name to its semantic family.
// Unknown names fall back to the aesthetic family, adjacency and modifier
// prefixes to their fixed families.
func ClassifyRelation(name string) Family {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return FamilyAesthetic
	}
	if f, ok := relationFamilies[normalized]; ok {
		return f
	}
	if strings.HasPrefix(normalized, "adjacency") {
		return FamilySpatial
	}
	if strings.HasPrefix(normalized, "modifier:") {
		return FamilyCommunicative
	}
	return FamilyAesthetic
}
