package agents

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haql-ai/murshid/internal/advisory"
	"github.com/haql-ai/murshid/internal/llm"
)

func TestLLMExpertProducesOpinion(t *testing.T) {
	mock := llm.NewMockClient("").Queue(
		`{"recommendation": "Apply copper fungicide", "confidence": 0.85, "evidence": ["leaf spots match downy mildew"], "reasoning": "symptom pattern", "severity": "high"}`,
	)
	expert := NewLLMExpert("disease-expert", advisory.CapDiagnosis, mock, nil, nil)

	opinion, err := expert.Invoke(context.Background(), Invocation{
		Query: advisory.Query{Text: "White spots on my tomato leaves", Language: advisory.LanguageEnglish, Crop: "tomato"},
	})
	require.NoError(t, err)

	assert.Equal(t, "disease-expert", opinion.AgentID)
	assert.Equal(t, string(advisory.CapDiagnosis), opinion.AgentRole)
	assert.Equal(t, "Apply copper fungicide", opinion.Recommendation)
	assert.InDelta(t, 0.85, opinion.Confidence, 1e-9)
	assert.Equal(t, "high", opinion.Metadata["severity"])
	assert.False(t, opinion.Timestamp.IsZero())

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "tomato")
	assert.Contains(t, calls[0].System, "Answer in English")
	assert.True(t, calls[0].JSONOnly)
}

func TestLLMExpertArabicPersona(t *testing.T) {
	mock := llm.NewMockClient(`{"recommendation": "قلل الري", "confidence": 0.7, "evidence": [], "reasoning": ""}`)
	expert := NewLLMExpert("irrigation-advisor", advisory.CapIrrigation, mock, nil, nil)

	opinion, err := expert.Invoke(context.Background(), Invocation{
		Query: advisory.Query{Text: "كم مرة أسقي الطماطم؟", Language: advisory.LanguageArabic},
	})
	require.NoError(t, err)
	assert.Equal(t, "قلل الري", opinion.Recommendation)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "أجب باللغة العربية")
}

func TestLLMExpertRepairsSloppyJSON(t *testing.T) {
	// Fenced and trailing-comma output still parses.
	mock := llm.NewMockClient("").Queue("```json\n{\"recommendation\": \"Rotate crops\", \"confidence\": 0.6,}\n```")
	expert := NewLLMExpert("eco-advisor", advisory.CapEcological, mock, nil, nil)

	opinion, err := expert.Invoke(context.Background(), Invocation{
		Query: advisory.Query{Text: "soil is tired", Language: advisory.LanguageEnglish},
	})
	require.NoError(t, err)
	assert.Equal(t, "Rotate crops", opinion.Recommendation)
}

func TestLLMExpertClampsConfidence(t *testing.T) {
	mock := llm.NewMockClient(`{"recommendation": "Do the thing", "confidence": 3.5}`)
	expert := NewLLMExpert("x", advisory.CapGeneralAdvisory, mock, nil, nil)

	opinion, err := expert.Invoke(context.Background(), Invocation{
		Query: advisory.Query{Text: "help", Language: advisory.LanguageEnglish},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, opinion.Confidence)
}

func TestLLMExpertEmptyRecommendationFails(t *testing.T) {
	mock := llm.NewMockClient(`{"recommendation": "", "confidence": 0.9}`)
	expert := NewLLMExpert("x", advisory.CapGeneralAdvisory, mock, nil, nil)

	_, err := expert.Invoke(context.Background(), Invocation{
		Query: advisory.Query{Text: "help", Language: advisory.LanguageEnglish},
	})
	assert.Error(t, err)
}

func TestLLMExpertTruncatedOnCancellation(t *testing.T) {
	mock := llm.NewMockClient(`{"recommendation": "unused", "confidence": 0.9}`)
	expert := NewLLMExpert("x", advisory.CapGeneralAdvisory, mock, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opinion, err := expert.Invoke(ctx, Invocation{
		Query: advisory.Query{Text: "help", Language: advisory.LanguageEnglish},
	})
	require.NoError(t, err, "cancellation yields a truncated opinion, not an error")
	assert.Zero(t, opinion.Confidence)
	assert.Equal(t, "true", opinion.Metadata["truncated"])
	assert.LessOrEqual(t, opinion.DurationMS, int64(time.Second.Milliseconds()))
}

func TestLLMExpertContextKeysOrdered(t *testing.T) {
	mock := llm.NewMockClient(`{"recommendation": "Reduce irrigation", "confidence": 0.7}`)
	expert := NewLLMExpert("x", advisory.CapIrrigation, mock, nil, nil)

	_, err := expert.Invoke(context.Background(), Invocation{
		Query: advisory.Query{Text: "leaves curling", Language: advisory.LanguageEnglish},
		AdditionalContext: map[string]string{
			"soil_type":  "clay",
			"crop_stage": "flowering",
			"field_size": "2ha",
		},
	})
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	prompt := calls[0].Prompt
	// Context lines render in key order so repeated invocations build the
	// same prompt.
	crop := strings.Index(prompt, "crop_stage: flowering")
	field := strings.Index(prompt, "field_size: 2ha")
	soil := strings.Index(prompt, "soil_type: clay")
	require.NotEqual(t, -1, crop)
	require.NotEqual(t, -1, field)
	require.NotEqual(t, -1, soil)
	assert.Less(t, crop, field)
	assert.Less(t, field, soil)
}

func TestLLMExpertSeesPriorOpinions(t *testing.T) {
	mock := llm.NewMockClient(`{"recommendation": "Agree with fungicide", "confidence": 0.8}`)
	expert := NewLLMExpert("x", advisory.CapTreatment, mock, nil, nil)

	_, err := expert.Invoke(context.Background(), Invocation{
		Query: advisory.Query{Text: "what now", Language: advisory.LanguageEnglish},
		PriorOpinions: []advisory.Opinion{{
			AgentID: "a", AgentRole: "diagnosis", Recommendation: "Apply fungicide X", Confidence: 0.9,
		}},
	})
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "Apply fungicide X")
}
