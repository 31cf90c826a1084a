package usage

import "proposal-backend/internal/shared/telemetry"

// ModelPricing holds per-1K-token prices for one model.
type ModelPricing struct {
	ModelName        string
	InputPricePer1K  float64
	OutputPricePer1K float64
	Provider         string
}

// defaultPricing seeds the lookup table. Prices are USD per 1K tokens.
var defaultPricing = []ModelPricing{
	{ModelName: "gpt-4o", InputPricePer1K: 0.0025, OutputPricePer1K: 0.01, Provider: "openai"},
	{ModelName: "gpt-4o-mini", InputPricePer1K: 0.00015, OutputPricePer1K: 0.0006, Provider: "openai"},
	{ModelName: "gpt-4.1", InputPricePer1K: 0.002, OutputPricePer1K: 0.008, Provider: "openai"},
	{ModelName: "gpt-4.1-mini", InputPricePer1K: 0.0004, OutputPricePer1K: 0.0016, Provider: "openai"},
	{ModelName: "claude-3-5-sonnet-latest", InputPricePer1K: 0.003, OutputPricePer1K: 0.015, Provider: "anthropic"},
	{ModelName: "claude-3-5-haiku-latest", InputPricePer1K: 0.0008, OutputPricePer1K: 0.004, Provider: "anthropic"},
	{ModelName: "claude-sonnet-4-20250514", InputPricePer1K: 0.003, OutputPricePer1K: 0.015, Provider: "anthropic"},
}

// PriceTable maps model names to pricing.
type PriceTable struct {
	byModel map[string]ModelPricing
}

// NewPriceTable builds a table from the defaults plus any overrides.
func NewPriceTable(overrides ...ModelPricing) *PriceTable {
	table := &PriceTable{byModel: make(map[string]ModelPricing, len(defaultPricing)+len(overrides))}
	for _, p := range defaultPricing {
		table.byModel[p.ModelName] = p
	}
	for _, p := range overrides {
		table.byModel[p.ModelName] = p
	}
	return table
}

// Lookup returns pricing for an exact model name.
func (t *PriceTable) Lookup(modelName string) (ModelPricing, bool) {
	p, ok := t.byModel[modelName]
	return p, ok
}

// CalculateCost maps token counts to currency cost for the given model.
// Unknown models cost 0; that is a handled case, logged as a warning, never an
// error.
func (t *PriceTable) CalculateCost(inputTokens, outputTokens int, modelName string) float64 {
	p, ok := t.Lookup(modelName)
	if !ok {
		telemetry.Warn("usage.unknown_model_pricing", map[string]any{"model": modelName})
		return 0
	}
	return float64(inputTokens)/1000*p.InputPricePer1K + float64(outputTokens)/1000*p.OutputPricePer1K
}
