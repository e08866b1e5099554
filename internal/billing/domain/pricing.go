package domain

// ModelRate prices a model per 1000 tokens.
type ModelRate struct {
	Prompt     float64
	Completion float64
}

// modelRates is the per-model pricing table. Unknown models fall back
// to defaultRate so a newly shipped model is never free.
var modelRates = map[string]ModelRate{
	"gpt-4o-mini":            {Prompt: 0.00015, Completion: 0.0006},
	"gpt-4o":                 {Prompt: 0.0025, Completion: 0.01},
	"gpt-4.1-mini":           {Prompt: 0.0004, Completion: 0.0016},
	"text-embedding-3-small": {Prompt: 0.00002, Completion: 0},
	"text-embedding-3-large": {Prompt: 0.00013, Completion: 0},
}

var defaultRate = ModelRate{Prompt: 0.0025, Completion: 0.01}

// RateFor returns the pricing of a model.
func RateFor(model string) ModelRate {
	if rate, ok := modelRates[model]; ok {
		return rate
	}
	return defaultRate
}
