package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/haql-ai/murshid/internal/advisory"
	"github.com/haql-ai/murshid/internal/llm"
	"github.com/haql-ai/murshid/internal/observability"
)

// kindProfile is the default plan for one query kind.
type kindProfile struct {
	caps       []advisory.Capability
	mode       advisory.ExecutionMode
	consensus  bool
	complexity advisory.Complexity
}

var kindProfiles = map[advisory.QueryKind]kindProfile{
	advisory.KindDiagnosis: {
		caps:       []advisory.Capability{advisory.CapDiagnosis, advisory.CapTreatment},
		mode:       advisory.ModeParallel,
		complexity: advisory.ComplexityMedium,
	},
	advisory.KindTreatment: {
		caps:       []advisory.Capability{advisory.CapTreatment},
		mode:       advisory.ModeSingle,
		complexity: advisory.ComplexityLow,
	},
	advisory.KindIrrigation: {
		caps:       []advisory.Capability{advisory.CapIrrigation},
		mode:       advisory.ModeSingle,
		complexity: advisory.ComplexityLow,
	},
	advisory.KindFertilization: {
		caps:       []advisory.Capability{advisory.CapSoilScience, advisory.CapFertilization},
		mode:       advisory.ModeSequential,
		complexity: advisory.ComplexityMedium,
	},
	advisory.KindPest: {
		caps:       []advisory.Capability{advisory.CapPestManagement, advisory.CapTreatment},
		mode:       advisory.ModeParallel,
		complexity: advisory.ComplexityMedium,
	},
	advisory.KindHarvest: {
		caps:       []advisory.Capability{advisory.CapYieldPrediction, advisory.CapMarketAnalysis},
		mode:       advisory.ModeSequential,
		complexity: advisory.ComplexityMedium,
	},
	advisory.KindEmergency: {
		caps: []advisory.Capability{
			advisory.CapDiagnosis, advisory.CapTreatment,
			advisory.CapPestManagement, advisory.CapIrrigation,
		},
		mode:       advisory.ModeCouncil,
		consensus:  true,
		complexity: advisory.ComplexityHigh,
	},
	advisory.KindEcological: {
		caps:       []advisory.Capability{advisory.CapEcological, advisory.CapSoilScience},
		mode:       advisory.ModeParallel,
		complexity: advisory.ComplexityMedium,
	},
	advisory.KindMarket: {
		caps:       []advisory.Capability{advisory.CapMarketAnalysis},
		mode:       advisory.ModeSingle,
		complexity: advisory.ComplexityLow,
	},
	advisory.KindFieldAnalysis: {
		caps: []advisory.Capability{
			advisory.CapImageAnalysis, advisory.CapSatelliteAnalysis, advisory.CapDiagnosis,
		},
		mode:       advisory.ModeSequential,
		complexity: advisory.ComplexityHigh,
	},
	advisory.KindYield: {
		caps:       []advisory.Capability{advisory.CapYieldPrediction, advisory.CapWeatherAnalysis},
		mode:       advisory.ModeParallel,
		complexity: advisory.ComplexityMedium,
	},
	advisory.KindGeneral: {
		caps:       []advisory.Capability{advisory.CapGeneralAdvisory},
		mode:       advisory.ModeSingle,
		complexity: advisory.ComplexityLow,
	},
}

// kindLexicon drives the keyword fallback classifier. Order matters: earlier
// entries win on the first keyword hit.
var kindLexicon = []struct {
	kind     advisory.QueryKind
	keywords []string
}{
	{advisory.KindEmergency, []string{
		"dying", "urgent", "emergency", "all my", "entire field", "sudden",
		"تموت", "طارئ", "عاجل", "كل المحصول", "الحقل كله", "مفاجئ",
	}},
	{advisory.KindPest, []string{
		"pest", "insect", "aphid", "locust", "worm", "caterpillar", "whitefly",
		"آفة", "آفات", "حشرة", "حشرات", "جراد", "دودة", "ذبابة بيضاء",
	}},
	{advisory.KindDiagnosis, []string{
		"disease", "spots", "yellowing", "wilting", "fungus", "mold", "rot", "blight",
		"مرض", "بقع", "اصفرار", "ذبول", "فطر", "عفن", "تعفن", "لفحة",
	}},
	{advisory.KindTreatment, []string{
		"treat", "spray", "fungicide", "pesticide", "cure", "dose",
		"علاج", "رش", "مبيد", "جرعة",
	}},
	{advisory.KindIrrigation, []string{
		"water", "irrigat", "drip", "drought", "moisture",
		"ري", "سقي", "ماء", "مياه", "جفاف", "رطوبة",
	}},
	{advisory.KindFertilization, []string{
		"fertiliz", "nitrogen", "npk", "compost", "nutrient", "manure",
		"سماد", "تسميد", "نيتروجين", "مغذيات",
	}},
	{advisory.KindHarvest, []string{
		"harvest", "when to pick", "ripeness", "ripe",
		"حصاد", "قطف", "نضج",
	}},
	{advisory.KindEcological, []string{
		"organic", "sustainab", "biodiversity", "environment",
		"عضوي", "مستدام", "تنوع حيوي", "بيئة",
	}},
	{advisory.KindMarket, []string{
		"price", "market", "sell", "demand", "export",
		"سعر", "سوق", "بيع", "طلب", "تصدير",
	}},
	{advisory.KindFieldAnalysis, []string{
		"satellite", "ndvi", "field scan", "photo of my field", "image",
		"قمر صناعي", "صورة الحقل", "صورة",
	}},
	{advisory.KindYield, []string{
		"yield", "how much will", "production estimate", "expected crop",
		"غلة", "إنتاج", "محصول متوقع",
	}},
}

// analyzer classifies a query into an Analysis, preferring the language
// model and falling back to the keyword lexicon when the model is
// unreachable or returns garbage.
type analyzer struct {
	client llm.Client
	logger *observability.Logger
}

func newAnalyzer(client llm.Client, logger *observability.Logger) *analyzer {
	if logger == nil {
		logger = observability.Nop()
	}
	return &analyzer{client: client, logger: logger}
}

// llmAnalysis is the JSON shape the classifier prompt asks for.
type llmAnalysis struct {
	Kind           string   `json:"kind"`
	Capabilities   []string `json:"capabilities"`
	Mode           string   `json:"mode"`
	NeedsConsensus bool     `json:"needs_consensus"`
	Complexity     string   `json:"complexity"`
	Rationale      string   `json:"rationale"`
}

func (a *analyzer) Analyze(ctx context.Context, query advisory.Query) advisory.Analysis {
	if a.client != nil {
		if analysis, err := a.analyzeLLM(ctx, query); err == nil {
			return applyOverrides(query, analysis)
		} else if ctx.Err() == nil {
			a.logger.WarnContext(ctx, "model analysis failed, using keyword fallback", "error", err)
		}
	}
	return applyOverrides(query, a.analyzeKeywords(query))
}

func (a *analyzer) analyzeLLM(ctx context.Context, query advisory.Query) (advisory.Analysis, error) {
	kinds := make([]string, len(advisory.QueryKinds))
	for i, k := range advisory.QueryKinds {
		kinds[i] = string(k)
	}

	var prompt strings.Builder
	prompt.WriteString("Classify this farmer question.\n")
	fmt.Fprintf(&prompt, "Question (%s): %s\n", query.Language, query.Text)
	if query.Crop != "" {
		fmt.Fprintf(&prompt, "Crop: %s\n", query.Crop)
	}
	fmt.Fprintf(&prompt, "Priority: %s\n", query.Priority)
	fmt.Fprintf(&prompt, "Valid kinds: %s\n", strings.Join(kinds, ", "))
	prompt.WriteString("Valid modes: SINGLE, PARALLEL, SEQUENTIAL, COUNCIL\n")
	prompt.WriteString(`Respond with JSON: {"kind": "...", "capabilities": ["..."], "mode": "...", "needs_consensus": false, "complexity": "low|med|high", "rationale": "..."}`)

	raw, err := a.client.Complete(ctx, llm.CompletionRequest{
		System:      "You are a query classifier for an agricultural advisory system. Answer with JSON only.",
		Prompt:      prompt.String(),
		Temperature: 0,
		JSONOnly:    true,
	})
	if err != nil {
		return advisory.Analysis{}, err
	}

	var parsed llmAnalysis
	if err := llm.DecodeJSON(raw, &parsed); err != nil {
		return advisory.Analysis{}, fmt.Errorf("malformed analysis: %w", err)
	}

	kind := advisory.QueryKind(parsed.Kind)
	profile, ok := kindProfiles[kind]
	if !ok {
		return advisory.Analysis{}, fmt.Errorf("unknown kind %q", parsed.Kind)
	}

	analysis := advisory.Analysis{
		Kind:           kind,
		Mode:           profile.mode,
		NeedsConsensus: parsed.NeedsConsensus || profile.consensus,
		Complexity:     profile.complexity,
		Rationale:      parsed.Rationale,
	}
	for _, c := range parsed.Capabilities {
		cap := advisory.Capability(c)
		if cap.Valid() {
			analysis.RequiredCapabilities = append(analysis.RequiredCapabilities, cap)
		}
	}
	if len(analysis.RequiredCapabilities) == 0 {
		analysis.RequiredCapabilities = profile.caps
	}
	switch advisory.ExecutionMode(parsed.Mode) {
	case advisory.ModeSingle, advisory.ModeParallel, advisory.ModeSequential, advisory.ModeCouncil:
		analysis.Mode = advisory.ExecutionMode(parsed.Mode)
	}
	switch advisory.Complexity(parsed.Complexity) {
	case advisory.ComplexityLow, advisory.ComplexityMedium, advisory.ComplexityHigh:
		analysis.Complexity = advisory.Complexity(parsed.Complexity)
	}
	return analysis, nil
}

func (a *analyzer) analyzeKeywords(query advisory.Query) advisory.Analysis {
	text := strings.ToLower(query.Text)
	kind := advisory.KindGeneral
scan:
	for _, entry := range kindLexicon {
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				kind = entry.kind
				break scan
			}
		}
	}
	if len(query.Images) > 0 && kind == advisory.KindGeneral {
		kind = advisory.KindFieldAnalysis
	}

	profile := kindProfiles[kind]
	return advisory.Analysis{
		Kind:                 kind,
		RequiredCapabilities: profile.caps,
		Mode:                 profile.mode,
		NeedsConsensus:       profile.consensus,
		Complexity:           profile.complexity,
		Rationale:            "keyword classification",
	}
}

// applyOverrides enforces the rules that always win over classification:
// emergencies convene a council, and a single required capability never
// justifies a multi-agent mode.
func applyOverrides(query advisory.Query, analysis advisory.Analysis) advisory.Analysis {
	if query.Priority == advisory.PriorityEmergency || analysis.Kind == advisory.KindEmergency {
		analysis.Mode = advisory.ModeCouncil
		analysis.NeedsConsensus = true
		analysis.Complexity = advisory.ComplexityHigh
	} else if len(analysis.RequiredCapabilities) < 2 && analysis.Mode != advisory.ModeSingle {
		analysis.Rationale = strings.TrimSpace(analysis.Rationale + " (single capability, mode reduced from " + string(analysis.Mode) + ")")
		analysis.Mode = advisory.ModeSingle
	}
	return analysis
}
