package main

import (
	"context"
	"fmt"
	"time"

	"github.com/haql-ai/murshid/internal/advisory"
	"github.com/haql-ai/murshid/internal/agents"
	"github.com/haql-ai/murshid/internal/knowledge"
	"github.com/haql-ai/murshid/internal/llm"
	"github.com/haql-ai/murshid/internal/observability"
	"github.com/haql-ai/murshid/internal/registry"
)

// fleetSpec describes one built-in expert.
type fleetSpec struct {
	id         string
	name       string
	nameAR     string
	capability advisory.Capability
	extraCaps  []advisory.Capability
	score      float64
}

// defaultFleet is the in-process expert roster registered at startup so the
// service answers questions before any external agent joins.
var defaultFleet = []fleetSpec{
	{id: "disease-expert", name: "Plant Disease Expert", nameAR: "خبير أمراض النبات", capability: advisory.CapDiagnosis, extraCaps: []advisory.Capability{advisory.CapTreatment}, score: 0.85},
	{id: "pest-expert", name: "Pest Management Expert", nameAR: "خبير مكافحة الآفات", capability: advisory.CapPestManagement, extraCaps: []advisory.Capability{advisory.CapTreatment}, score: 0.85},
	{id: "irrigation-advisor", name: "Irrigation Advisor", nameAR: "مستشار الري", capability: advisory.CapIrrigation, score: 0.8},
	{id: "soil-specialist", name: "Soil and Fertilization Specialist", nameAR: "أخصائي التربة والتسميد", capability: advisory.CapSoilScience, extraCaps: []advisory.Capability{advisory.CapFertilization}, score: 0.8},
	{id: "yield-analyst", name: "Yield Analyst", nameAR: "محلل الغلة", capability: advisory.CapYieldPrediction, extraCaps: []advisory.Capability{advisory.CapWeatherAnalysis}, score: 0.75},
	{id: "market-analyst", name: "Market Analyst", nameAR: "محلل السوق", capability: advisory.CapMarketAnalysis, score: 0.75},
	{id: "eco-advisor", name: "Agroecology Advisor", nameAR: "مستشار البيئة الزراعية", capability: advisory.CapEcological, score: 0.7},
	{id: "field-analyst", name: "Field Imaging Analyst", nameAR: "محلل صور الحقول", capability: advisory.CapImageAnalysis, extraCaps: []advisory.Capability{advisory.CapSatelliteAnalysis}, score: 0.7},
	{id: "general-advisor", name: "General Agricultural Advisor", nameAR: "المرشد الزراعي العام", capability: advisory.CapGeneralAdvisory, score: 0.6},
}

// localFleet builds the in-process experts the routing dialer serves under
// local: endpoints. Without a model client the fleet is empty and only
// remote agents can answer.
func localFleet(client llm.Client, retriever *knowledge.Retriever, logger *observability.Logger) map[string]agents.Expert {
	fleet := make(map[string]agents.Expert, len(defaultFleet))
	if client == nil {
		return fleet
	}
	for _, spec := range defaultFleet {
		fleet[spec.id] = agents.NewLLMExpert(spec.id, spec.capability, client, retriever, logger)
	}
	return fleet
}

// keepFleetAlive heartbeats the built-in experts so they outlive the
// registry TTL.
func keepFleetAlive(ctx context.Context, reg *registry.Registry, interval time.Duration) {
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, spec := range defaultFleet {
				_ = reg.Heartbeat(ctx, spec.id)
			}
		}
	}
}

// bootstrapFleet registers the built-in experts. Skipped entirely when no
// model client exists, since the local experts could not answer anyway.
func bootstrapFleet(ctx context.Context, reg *registry.Registry, haveModel bool) error {
	if !haveModel {
		return nil
	}
	now := time.Now()
	for _, spec := range defaultFleet {
		card := advisory.AgentCard{
			AgentID:          spec.id,
			Name:             spec.name,
			Version:          "1.0.0",
			DescriptionEN:    spec.name,
			DescriptionAR:    spec.nameAR,
			Capabilities:     append([]advisory.Capability{spec.capability}, spec.extraCaps...),
			Endpoint:         agents.LocalScheme + spec.id,
			Status:           advisory.StatusActive,
			PerformanceScore: spec.score,
			LastHeartbeat:    now,
			Tags:             []string{"builtin"},
		}
		if err := reg.Register(ctx, card); err != nil {
			return fmt.Errorf("register %s: %w", spec.id, err)
		}
	}
	return nil
}
