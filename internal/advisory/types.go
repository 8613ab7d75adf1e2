// Package advisory defines the shared data model of the advisory core:
// queries, analyses, expert opinions, consensus results, and the final
// advisory object returned to callers.
package advisory

import "time"

// Language selects the response language of an advisory.
type Language string

const (
	LanguageArabic  Language = "ar"
	LanguageEnglish Language = "en"
)

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	return l == LanguageArabic || l == LanguageEnglish
}

// Priority of a submitted query. Emergency queries force council mode.
type Priority string

const (
	PriorityNormal    Priority = "normal"
	PriorityHigh      Priority = "high"
	PriorityEmergency Priority = "emergency"
)

// QueryKind classifies what a query is asking for.
type QueryKind string

const (
	KindDiagnosis     QueryKind = "diagnosis"
	KindTreatment     QueryKind = "treatment"
	KindIrrigation    QueryKind = "irrigation"
	KindFertilization QueryKind = "fertilization"
	KindPest          QueryKind = "pest"
	KindHarvest       QueryKind = "harvest"
	KindEmergency     QueryKind = "emergency"
	KindEcological    QueryKind = "ecological"
	KindMarket        QueryKind = "market"
	KindFieldAnalysis QueryKind = "field_analysis"
	KindYield         QueryKind = "yield"
	KindGeneral       QueryKind = "general"
)

// QueryKinds enumerates the closed set of query kinds.
var QueryKinds = []QueryKind{
	KindDiagnosis, KindTreatment, KindIrrigation, KindFertilization,
	KindPest, KindHarvest, KindEmergency, KindEcological,
	KindMarket, KindFieldAnalysis, KindYield, KindGeneral,
}

// Capability is a named expert skill.
type Capability string

const (
	CapDiagnosis         Capability = "diagnosis"
	CapTreatment         Capability = "treatment"
	CapIrrigation        Capability = "irrigation"
	CapFertilization     Capability = "fertilization"
	CapPestManagement    Capability = "pest_management"
	CapSoilScience       Capability = "soil_science"
	CapYieldPrediction   Capability = "yield_prediction"
	CapMarketAnalysis    Capability = "market_analysis"
	CapEcological        Capability = "ecological"
	CapWeatherAnalysis   Capability = "weather_analysis"
	CapImageAnalysis     Capability = "image_analysis"
	CapSatelliteAnalysis Capability = "satellite_analysis"

	// CapGeneralAdvisory is the fallback capability used when analysis
	// cannot resolve anything more specific.
	CapGeneralAdvisory Capability = "general_advisory"
)

// Capabilities enumerates the closed set of capabilities.
var Capabilities = []Capability{
	CapDiagnosis, CapTreatment, CapIrrigation, CapFertilization,
	CapPestManagement, CapSoilScience, CapYieldPrediction, CapMarketAnalysis,
	CapEcological, CapWeatherAnalysis, CapImageAnalysis, CapSatelliteAnalysis,
	CapGeneralAdvisory,
}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	for _, known := range Capabilities {
		if c == known {
			return true
		}
	}
	return false
}

// ExecutionMode is the discipline under which selected experts run.
type ExecutionMode string

const (
	ModeSingle     ExecutionMode = "SINGLE"
	ModeParallel   ExecutionMode = "PARALLEL"
	ModeSequential ExecutionMode = "SEQUENTIAL"
	ModeCouncil    ExecutionMode = "COUNCIL"
)

// Downgrade returns the mode one notch below m
// (COUNCIL -> SEQUENTIAL -> PARALLEL -> SINGLE).
func (m ExecutionMode) Downgrade() ExecutionMode {
	switch m {
	case ModeCouncil:
		return ModeSequential
	case ModeSequential:
		return ModeParallel
	case ModeParallel:
		return ModeSingle
	default:
		return ModeSingle
	}
}

// Complexity grades how demanding a query is.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "med"
	ComplexityHigh   Complexity = "high"
)

// Query is the immutable input to the coordinator.
type Query struct {
	Text         string            `json:"text"`
	Language     Language          `json:"language"`
	Crop         string            `json:"crop,omitempty"`
	FieldID      string            `json:"field_id,omitempty"`
	FarmerID     string            `json:"farmer_id,omitempty"`
	Priority     Priority          `json:"priority"`
	ExtraContext map[string]string `json:"extra_context,omitempty"`
	Images       []string          `json:"images,omitempty"`
}

// Analysis is derived from a Query and drives agent selection and mode choice.
type Analysis struct {
	Kind                 QueryKind     `json:"kind"`
	RequiredCapabilities []Capability  `json:"required_capabilities"`
	Mode                 ExecutionMode `json:"mode"`
	NeedsConsensus       bool          `json:"needs_consensus"`
	Complexity           Complexity    `json:"complexity"`
	Rationale            string        `json:"rationale,omitempty"`
}

// Opinion is a single expert's structured recommendation.
type Opinion struct {
	AgentID          string            `json:"agent_id"`
	AgentRole        string            `json:"agent_role"`
	Recommendation   string            `json:"recommendation"`
	Confidence       float64           `json:"confidence"`
	Evidence         []string          `json:"evidence,omitempty"`
	DissentingPoints []string          `json:"dissenting_points,omitempty"`
	Reasoning        string            `json:"reasoning,omitempty"`
	Sources          []string          `json:"sources,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	DurationMS       int64             `json:"duration_ms"`
	Timestamp        time.Time         `json:"timestamp"`
}

// ConflictKind names the dimension along which opinions disagree.
type ConflictKind string

const (
	ConflictRecommendation ConflictKind = "recommendation_divergence"
	ConflictEvidence       ConflictKind = "evidence_divergence"
	ConflictSeverity       ConflictKind = "severity_divergence"
)

// Conflict is an explicit record of disagreement among opinions.
type Conflict struct {
	Parties             []string     `json:"parties"`
	Kind                ConflictKind `json:"kind"`
	Severity            float64      `json:"severity"`
	Description         string       `json:"description"`
	SuggestedResolution string       `json:"suggested_resolution,omitempty"`
}

// Strategy names one of the consensus aggregation rules.
type Strategy string

const (
	StrategyMajorityVote       Strategy = "MAJORITY_VOTE"
	StrategyWeightedConfidence Strategy = "WEIGHTED_CONFIDENCE"
	StrategyExpertiseWeighted  Strategy = "EXPERTISE_WEIGHTED"
	StrategyUnanimous          Strategy = "UNANIMOUS"
	StrategySupermajority      Strategy = "SUPERMAJORITY"
	StrategyBayesian           Strategy = "BAYESIAN"
	StrategyRankedChoice       Strategy = "RANKED_CHOICE"
)

// Strategies enumerates all aggregation strategies in their canonical order.
// The order is the stable tie-break used when comparing strategies.
var Strategies = []Strategy{
	StrategyMajorityVote,
	StrategyWeightedConfidence,
	StrategyExpertiseWeighted,
	StrategyUnanimous,
	StrategySupermajority,
	StrategyBayesian,
	StrategyRankedChoice,
}

// Consensus is the consensus engine's output for one set of opinions.
type Consensus struct {
	Decision       string     `json:"decision"`
	Confidence     float64    `json:"confidence"`
	ConsensusLevel float64    `json:"consensus_level"`
	Supporting     []Opinion  `json:"supporting"`
	Dissenting     []Opinion  `json:"dissenting"`
	Conflicts      []Conflict `json:"conflicts,omitempty"`
	Strategy       Strategy   `json:"strategy"`
	CouncilKind    string     `json:"council_kind,omitempty"`
}

// Advisory metadata keys used by the coordinator.
const (
	MetaError              = "error"
	MetaDegraded           = "degraded"
	MetaPartial            = "partial"
	MetaDeliberationRounds = "deliberation_rounds"
	MetaDowngradedFrom     = "downgraded_from"
	MetaStaleRegistry      = "stale_registry"
)

// Advisory is the final bilingual answer object.
type Advisory struct {
	QueryRef        string            `json:"query_ref"`
	Answer          string            `json:"answer"`
	Kind            QueryKind         `json:"kind"`
	AgentsConsulted []string          `json:"agents_consulted"`
	Mode            ExecutionMode     `json:"mode"`
	Confidence      float64           `json:"confidence"`
	Recommendations []string          `json:"recommendations"`
	Warnings        []string          `json:"warnings,omitempty"`
	NextSteps       []string          `json:"next_steps,omitempty"`
	Language        Language          `json:"language"`
	Timestamp       time.Time         `json:"timestamp"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}
