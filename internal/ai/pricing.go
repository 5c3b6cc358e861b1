package ai

import "strings"

// Price is USD per million tokens.
type Price struct {
	Input  float64
	Output float64
}

var prices = map[string]Price{
	"gpt-4o":           {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":      {Input: 0.15, Output: 0.60},
	"gpt-4.1":          {Input: 2.00, Output: 8.00},
	"gpt-4.1-mini":     {Input: 0.40, Output: 1.60},
	"gemini-2.0-flash": {Input: 0.10, Output: 0.40},
	"gemini-2.5-flash": {Input: 0.30, Output: 2.50},
	"gemini-2.5-pro":   {Input: 1.25, Output: 10.00},
}

// fallbackPrice is charged for models missing from the table so unknown models
// are never free in the ledger.
var fallbackPrice = Price{Input: 5.00, Output: 15.00}

// PriceFor matches a model by exact name, then by the longest known prefix, so
// dated snapshots such as gpt-4o-mini-2024-07-18 resolve to their family.
func PriceFor(model string) Price {
	if p, ok := prices[model]; ok {
		return p
	}
	best, bestLen := fallbackPrice, 0
	for name, p := range prices {
		if strings.HasPrefix(model, name) && len(name) > bestLen {
			best, bestLen = p, len(name)
		}
	}
	return best
}

func Cost(model string, promptTokens, completionTokens int) float64 {
	p := PriceFor(model)
	return (float64(max(promptTokens, 0))*p.Input + float64(max(completionTokens, 0))*p.Output) / 1_000_000
}
