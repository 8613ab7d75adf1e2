// Package locale resolves user-facing strings per language. Components never
// embed format strings at their boundaries; they look messages up here by key.
package locale

import (
	"fmt"

	"github.com/haql-ai/murshid/internal/advisory"
)

// Message keys.
const (
	KeyProcessingFailed    = "processing_failed"
	KeyNoAgentsAvailable   = "no_agents_available"
	KeyAllAgentsFailed     = "all_agents_failed"
	KeyAnalysisUnavailable = "analysis_unavailable"
	KeyPartialResults      = "partial_results"
	KeyConflictingAdvice   = "conflicting_advice"
	KeyAdditionalAdvice    = "additional_advice"
	KeyConsultSpecialist   = "consult_specialist"
)

var messages = map[advisory.Language]map[string]string{
	advisory.LanguageEnglish: {
		KeyProcessingFailed:    "We could not process your question. Please try again later.",
		KeyNoAgentsAvailable:   "No agricultural experts are currently available for your question.",
		KeyAllAgentsFailed:     "All consulted experts failed to answer. Please try again later.",
		KeyAnalysisUnavailable: "Your question could not be understood. Please rephrase it.",
		KeyPartialResults:      "Some experts did not respond in time; this advice is based on partial results.",
		KeyConflictingAdvice:   "Experts disagreed on parts of this advice; review the warnings carefully.",
		KeyAdditionalAdvice:    "Additional expert advice",
		KeyConsultSpecialist:   "Consult a local agricultural engineer before applying chemical treatments.",
	},
	advisory.LanguageArabic: {
		KeyProcessingFailed:    "تعذر معالجة سؤالك. يرجى المحاولة مرة أخرى لاحقًا.",
		KeyNoAgentsAvailable:   "لا يوجد خبراء زراعيون متاحون حاليًا لسؤالك.",
		KeyAllAgentsFailed:     "تعذر على جميع الخبراء الإجابة. يرجى المحاولة مرة أخرى لاحقًا.",
		KeyAnalysisUnavailable: "تعذر فهم سؤالك. يرجى إعادة صياغته.",
		KeyPartialResults:      "لم يستجب بعض الخبراء في الوقت المحدد؛ تستند هذه النصيحة إلى نتائج جزئية.",
		KeyConflictingAdvice:   "اختلف الخبراء حول أجزاء من هذه النصيحة؛ راجع التحذيرات بعناية.",
		KeyAdditionalAdvice:    "نصائح إضافية من الخبراء",
		KeyConsultSpecialist:   "استشر مهندسًا زراعيًا محليًا قبل استخدام المعالجات الكيميائية.",
	},
}

// capabilityNames holds the human names used in "no specialist" warnings.
var capabilityNames = map[advisory.Capability]map[advisory.Language]string{
	advisory.CapDiagnosis:         {advisory.LanguageEnglish: "disease", advisory.LanguageArabic: "تشخيص الأمراض"},
	advisory.CapTreatment:         {advisory.LanguageEnglish: "treatment", advisory.LanguageArabic: "العلاج"},
	advisory.CapIrrigation:        {advisory.LanguageEnglish: "irrigation", advisory.LanguageArabic: "الري"},
	advisory.CapFertilization:     {advisory.LanguageEnglish: "fertilization", advisory.LanguageArabic: "التسميد"},
	advisory.CapPestManagement:    {advisory.LanguageEnglish: "pest management", advisory.LanguageArabic: "مكافحة الآفات"},
	advisory.CapSoilScience:       {advisory.LanguageEnglish: "soil science", advisory.LanguageArabic: "علوم التربة"},
	advisory.CapYieldPrediction:   {advisory.LanguageEnglish: "yield prediction", advisory.LanguageArabic: "توقع الإنتاجية"},
	advisory.CapMarketAnalysis:    {advisory.LanguageEnglish: "market analysis", advisory.LanguageArabic: "تحليل السوق"},
	advisory.CapEcological:        {advisory.LanguageEnglish: "ecological farming", advisory.LanguageArabic: "الزراعة البيئية"},
	advisory.CapWeatherAnalysis:   {advisory.LanguageEnglish: "weather analysis", advisory.LanguageArabic: "تحليل الطقس"},
	advisory.CapImageAnalysis:     {advisory.LanguageEnglish: "image analysis", advisory.LanguageArabic: "تحليل الصور"},
	advisory.CapSatelliteAnalysis: {advisory.LanguageEnglish: "satellite analysis", advisory.LanguageArabic: "التحليل الفضائي"},
	advisory.CapGeneralAdvisory:   {advisory.LanguageEnglish: "general advisory", advisory.LanguageArabic: "الإرشاد العام"},
}

// T resolves key in lang, falling back to English for unknown languages.
func T(lang advisory.Language, key string) string {
	table, ok := messages[lang]
	if !ok {
		table = messages[advisory.LanguageEnglish]
	}
	if msg, ok := table[key]; ok {
		return msg
	}
	return messages[advisory.LanguageEnglish][key]
}

// NoSpecialistWarning builds the bilingual warning emitted when a required
// capability has no active agent.
func NoSpecialistWarning(lang advisory.Language, cap advisory.Capability) string {
	name := string(cap)
	if names, ok := capabilityNames[cap]; ok {
		if n, ok := names[lang]; ok {
			name = n
		}
	}
	if lang == advisory.LanguageArabic {
		return fmt.Sprintf("لا يتوفر حاليًا خبير %s، وقد تكون النصيحة غير مكتملة.", name)
	}
	return fmt.Sprintf("No %s specialist is currently available; advice may be incomplete.", name)
}
