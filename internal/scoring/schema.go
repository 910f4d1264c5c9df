package scoring

import "github.com/pingbase/pingbase/internal/llm"

func intRange(lo, hi int) (*int, *int) { return &lo, &hi }

func boundedInt(desc string) llm.Property {
	lo, hi := intRange(0, 100)
	return llm.Property{Type: "integer", Description: desc, Minimum: lo, Maximum: hi}
}

var nullableString = []string{"string", "null"}

var relevanceSchema = llm.NamedSchema{
	Name:        "SignalRelevance",
	Description: "Relevance score and reason for a target match.",
	Schema: llm.Schema{
		Type: "object",
		Properties: map[string]llm.Property{
			"score":           boundedInt("Actionability score 0-100"),
			"reason":          {Type: "string", Description: "Short justification"},
			"specificAsk":     {Type: "boolean"},
			"fitGrade":        {Type: "string", Enum: []string{"none", "partial", "strong"}},
			"promoRisk":       {Type: "string", Enum: []string{"low", "medium", "high"}},
			"confidence":      boundedInt("Confidence in this judgment 0-100"),
			"rejectionReason": {Type: nullableString},
			"evidenceQuote":   {Type: nullableString},
		},
		Required: []string{"score", "reason", "specificAsk", "fitGrade", "promoRisk", "confidence", "rejectionReason", "evidenceQuote"},
	},
}

var validationSchema = llm.NamedSchema{
	Name:        "SignalValidation",
	Description: "Strict second-stage validator for actionable brand engagement signals.",
	Schema: llm.Schema{
		Type: "object",
		Properties: map[string]llm.Property{
			"decision":            {Type: "string", Enum: []string{"approve", "reject"}},
			"confidence":          boundedInt("Confidence in this decision 0-100"),
			"reason":              {Type: "string", Description: "Short justification"},
			"failureReason":       {Type: nullableString, Description: "Short snake_case code when rejecting; otherwise null"},
			"brandMentionNatural": {Type: "boolean"},
		},
		Required: []string{"decision", "confidence", "reason", "failureReason", "brandMentionNatural"},
	},
}
