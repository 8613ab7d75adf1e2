package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/haql-ai/murshid/internal/advisory"
	"github.com/haql-ai/murshid/internal/knowledge"
	"github.com/haql-ai/murshid/internal/llm"
	"github.com/haql-ai/murshid/internal/observability"
)

// persona is the bilingual system-prompt material for one capability.
type persona struct {
	roleEN string
	roleAR string
	focus  string
}

var personas = map[advisory.Capability]persona{
	advisory.CapDiagnosis: {
		roleEN: "a plant pathologist diagnosing crop diseases",
		roleAR: "أخصائي أمراض نباتية يشخص أمراض المحاصيل",
		focus:  "identify the most likely disease from the described symptoms and name it explicitly",
	},
	advisory.CapTreatment: {
		roleEN: "an agronomist prescribing crop treatments",
		roleAR: "مهندس زراعي يصف علاجات المحاصيل",
		focus:  "recommend a concrete treatment with dosage and timing, preferring low-toxicity options",
	},
	advisory.CapIrrigation: {
		roleEN: "an irrigation engineer advising on water management",
		roleAR: "مهندس ري يقدم المشورة في إدارة المياه",
		focus:  "give a watering schedule accounting for crop stage, soil type, and climate",
	},
	advisory.CapFertilization: {
		roleEN: "a soil fertility specialist advising on fertilization",
		roleAR: "أخصائي خصوبة تربة يقدم المشورة في التسميد",
		focus:  "recommend fertilizer type, rate, and application timing",
	},
	advisory.CapPestManagement: {
		roleEN: "an entomologist advising on pest control",
		roleAR: "أخصائي حشرات يقدم المشورة في مكافحة الآفات",
		focus:  "identify the pest and recommend integrated pest management steps before chemicals",
	},
	advisory.CapSoilScience: {
		roleEN: "a soil scientist assessing soil health",
		roleAR: "عالم تربة يقيّم صحة التربة",
		focus:  "interpret soil conditions and recommend amendments",
	},
	advisory.CapYieldPrediction: {
		roleEN: "an agricultural analyst estimating crop yields",
		roleAR: "محلل زراعي يقدّر غلة المحاصيل",
		focus:  "estimate expected yield and the factors that most affect it",
	},
	advisory.CapMarketAnalysis: {
		roleEN: "an agricultural economist analysing crop markets",
		roleAR: "اقتصادي زراعي يحلل أسواق المحاصيل",
		focus:  "advise on market timing, pricing, and demand for the crop",
	},
	advisory.CapEcological: {
		roleEN: "an agroecologist advising on sustainable practices",
		roleAR: "خبير بيئة زراعية يقدم المشورة في الممارسات المستدامة",
		focus:  "recommend ecologically sound practices and note environmental risks",
	},
	advisory.CapWeatherAnalysis: {
		roleEN: "an agrometeorologist interpreting weather impacts",
		roleAR: "أخصائي أرصاد زراعية يفسر تأثيرات الطقس",
		focus:  "relate recent and forecast weather to the crop's needs and risks",
	},
	advisory.CapImageAnalysis: {
		roleEN: "a crop imaging specialist interpreting field photos",
		roleAR: "أخصائي تصوير محاصيل يفسر صور الحقول",
		focus:  "describe what the referenced images likely show and its agronomic meaning",
	},
	advisory.CapSatelliteAnalysis: {
		roleEN: "a remote sensing analyst interpreting satellite data",
		roleAR: "محلل استشعار عن بعد يفسر بيانات الأقمار الصناعية",
		focus:  "interpret vegetation and moisture indices for the field",
	},
	advisory.CapGeneralAdvisory: {
		roleEN: "a general agricultural advisor",
		roleAR: "مرشد زراعي عام",
		focus:  "give practical, farmer-friendly advice on the question as asked",
	},
}

// llmOpinion is the JSON shape the model is asked to produce.
type llmOpinion struct {
	Recommendation string   `json:"recommendation"`
	Confidence     float64  `json:"confidence"`
	Evidence       []string `json:"evidence"`
	Reasoning      string   `json:"reasoning"`
	Severity       string   `json:"severity,omitempty"`
}

// LLMExpert is an in-process expert: a capability persona prompted over the
// language model, optionally grounded on retrieved agronomy passages.
type LLMExpert struct {
	agentID    string
	capability advisory.Capability
	client     llm.Client
	retriever  *knowledge.Retriever
	logger     *observability.Logger
}

// NewLLMExpert builds a persona expert for cap. retriever may be nil.
func NewLLMExpert(agentID string, cap advisory.Capability, client llm.Client, retriever *knowledge.Retriever, logger *observability.Logger) *LLMExpert {
	if logger == nil {
		logger = observability.Nop()
	}
	return &LLMExpert{
		agentID:    agentID,
		capability: cap,
		client:     client,
		retriever:  retriever,
		logger:     logger,
	}
}

// Invoke prompts the persona and parses its structured opinion. On context
// cancellation it returns a truncated zero-confidence opinion rather than an
// error so partial pipelines can keep what they have.
func (e *LLMExpert) Invoke(ctx context.Context, inv Invocation) (advisory.Opinion, error) {
	started := time.Now()

	passages := e.retrievePassages(ctx, inv.Query.Text)

	raw, err := e.client.Complete(ctx, llm.CompletionRequest{
		System:      e.systemPrompt(inv.Query.Language),
		Prompt:      e.userPrompt(inv, passages),
		Temperature: 0.3,
		JSONOnly:    true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return e.truncatedOpinion(started), nil
		}
		return advisory.Opinion{}, fmt.Errorf("expert %s: %w", e.agentID, err)
	}

	var parsed llmOpinion
	if err := llm.DecodeJSON(raw, &parsed); err != nil {
		return advisory.Opinion{}, fmt.Errorf("expert %s: malformed opinion: %w", e.agentID, err)
	}
	if strings.TrimSpace(parsed.Recommendation) == "" {
		return advisory.Opinion{}, fmt.Errorf("expert %s returned an empty recommendation", e.agentID)
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}

	opinion := advisory.Opinion{
		AgentID:        e.agentID,
		AgentRole:      string(e.capability),
		Recommendation: parsed.Recommendation,
		Confidence:     parsed.Confidence,
		Evidence:       parsed.Evidence,
		Reasoning:      parsed.Reasoning,
		DurationMS:     time.Since(started).Milliseconds(),
		Timestamp:      time.Now(),
	}
	if parsed.Severity != "" {
		opinion.Metadata = map[string]string{"severity": parsed.Severity}
	}
	for _, p := range passages {
		opinion.Sources = append(opinion.Sources, p.Source)
	}
	return opinion, nil
}

func (e *LLMExpert) retrievePassages(ctx context.Context, query string) []knowledge.Passage {
	if e.retriever == nil || e.retriever.Count() == 0 {
		return nil
	}
	passages, err := e.retriever.Retrieve(ctx, query, 0)
	if err != nil {
		// Knowledge grounding is best-effort; the persona still answers.
		e.logger.WarnContext(ctx, "knowledge retrieval failed", "agent_id", e.agentID, "error", err)
		return nil
	}
	return passages
}

func (e *LLMExpert) systemPrompt(lang advisory.Language) string {
	p, ok := personas[e.capability]
	if !ok {
		p = personas[advisory.CapGeneralAdvisory]
	}
	role := p.roleEN
	langInstr := "Answer in English."
	if lang == advisory.LanguageArabic {
		role = p.roleAR
		langInstr = "أجب باللغة العربية."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. Your task: %s.\n", role, p.focus)
	b.WriteString(langInstr)
	b.WriteString("\nRespond with a single JSON object:\n")
	b.WriteString(`{"recommendation": "<one actionable recommendation>", "confidence": <0.0-1.0>, "evidence": ["<supporting fact>"], "reasoning": "<brief reasoning>", "severity": "<low|medium|high|critical, only for diagnosed problems>"}`)
	return b.String()
}

func (e *LLMExpert) userPrompt(inv Invocation, passages []knowledge.Passage) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(inv.Query.Text)
	b.WriteString("\n")
	if inv.Query.Crop != "" {
		fmt.Fprintf(&b, "Crop: %s\n", inv.Query.Crop)
	}
	keys := make([]string, 0, len(inv.AdditionalContext))
	for k := range inv.AdditionalContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, inv.AdditionalContext[k])
	}
	if len(inv.Query.Images) > 0 {
		fmt.Fprintf(&b, "Attached images: %s\n", strings.Join(inv.Query.Images, ", "))
	}
	if len(passages) > 0 {
		b.WriteString("\nRelevant reference material:\n")
		b.WriteString(knowledge.FormatCompact(passages))
	}
	if len(inv.PriorOpinions) > 0 {
		b.WriteString("\nOpinions already given by other experts:\n")
		for _, prior := range inv.PriorOpinions {
			fmt.Fprintf(&b, "- %s (confidence %.2f): %s\n", prior.AgentRole, prior.Confidence, prior.Recommendation)
		}
		b.WriteString("Consider them, then give your own independent recommendation.\n")
	}
	if len(inv.MissingSteps) > 0 {
		fmt.Fprintf(&b, "\nNote: earlier pipeline steps failed and their input is missing: %s\n", strings.Join(inv.MissingSteps, ", "))
	}
	return b.String()
}

func (e *LLMExpert) truncatedOpinion(started time.Time) advisory.Opinion {
	return advisory.Opinion{
		AgentID:        e.agentID,
		AgentRole:      string(e.capability),
		Recommendation: "(truncated)",
		Confidence:     0,
		Metadata:       map[string]string{"truncated": "true"},
		DurationMS:     time.Since(started).Milliseconds(),
		Timestamp:      time.Now(),
	}
}
