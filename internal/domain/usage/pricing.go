// Package usage provides token accounting and cost math.
package usage

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Price holds per-model token pricing in microdollars per 1M tokens.
// ($1.00 == 1_000_000 microdollars, so the per-1M figure is just the
// USD price times 1e6: gpt-4o at $2.50/M prompt is 2_500_000.)
type Price struct {
	PromptMicroPerM     int64 `yaml:"prompt_micro_per_m"`
	CompletionMicroPerM int64 `yaml:"completion_micro_per_m"`
}

// defaultPrices covers the commonly routed models. Prices as of mid-2026.
var defaultPrices = map[string]Price{
	"openai/gpt-4o":                  {2_500_000, 10_000_000},
	"openai/gpt-4o-mini":             {150_000, 600_000},
	"anthropic/claude-sonnet-4":      {3_000_000, 15_000_000},
	"anthropic/claude-haiku-3.5":     {800_000, 4_000_000},
	"google/gemini-2.5-flash":        {150_000, 600_000},
	"meta-llama/llama-3.3-70b":       {120_000, 300_000},
	"deepseek/deepseek-chat":         {270_000, 1_100_000},
	"mistralai/mistral-small-3":      {100_000, 300_000},
}

// PricingTable resolves model costs. Safe for concurrent use.
type PricingTable struct {
	mu     sync.RWMutex
	prices map[string]Price
}

// NewPricingTable returns a table seeded with the built-in defaults.
func NewPricingTable() *PricingTable {
	prices := make(map[string]Price, len(defaultPrices))
	for k, v := range defaultPrices {
		prices[k] = v
	}
	return &PricingTable{prices: prices}
}

// LoadFile merges per-model overrides from a YAML file into the table.
// File format: a map of model id to {prompt_micro_per_m, completion_micro_per_m}.
func (p *PricingTable) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pricing file: %w", err)
	}

	overrides := make(map[string]Price)
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parse pricing file: %w", err)
	}

	p.mu.Lock()
	for model, price := range overrides {
		p.prices[model] = price
	}
	p.mu.Unlock()
	return nil
}

// Lookup returns the price for a model and whether it is known.
func (p *PricingTable) Lookup(model string) (Price, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.prices[model]
	return price, ok
}

// CostMicro computes the cost of a completion in integer microdollars.
// Unknown models cost zero; callers should log those so the pricing
// table can be extended.
func (p *PricingTable) CostMicro(model string, inputTokens, outputTokens int) (int64, bool) {
	price, ok := p.Lookup(model)
	if !ok {
		return 0, false
	}
	in := int64(inputTokens) * price.PromptMicroPerM / 1_000_000
	out := int64(outputTokens) * price.CompletionMicroPerM / 1_000_000
	return in + out, true
}
