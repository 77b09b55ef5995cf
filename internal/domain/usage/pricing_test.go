package usage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPricingTable_CostMicro(t *testing.T) {
	p := NewPricingTable()

	// gpt-4o: $2.50/M prompt, $10/M completion.
	// 1000 in + 500 out = 2500 + 5000 = 7500 microdollars.
	cost, ok := p.CostMicro("openai/gpt-4o", 1000, 500)
	if !ok {
		t.Fatal("gpt-4o should be in the default table")
	}
	if cost != 7500 {
		t.Errorf("CostMicro = %d, want 7500", cost)
	}
}

func TestPricingTable_UnknownModel(t *testing.T) {
	p := NewPricingTable()

	cost, ok := p.CostMicro("acme/unknown-model", 1000, 1000)
	if ok {
		t.Error("unknown model should report ok=false")
	}
	if cost != 0 {
		t.Errorf("unknown model cost = %d, want 0", cost)
	}
}

func TestPricingTable_ZeroTokens(t *testing.T) {
	p := NewPricingTable()

	cost, ok := p.CostMicro("openai/gpt-4o-mini", 0, 0)
	if !ok || cost != 0 {
		t.Errorf("CostMicro(0, 0) = %d, %v; want 0, true", cost, ok)
	}
}

func TestPricingTable_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	content := "acme/custom-model:\n  prompt_micro_per_m: 1000000\n  completion_micro_per_m: 2000000\n" +
		"openai/gpt-4o:\n  prompt_micro_per_m: 5000000\n  completion_micro_per_m: 20000000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	p := NewPricingTable()
	if err := p.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}

	// New model added.
	cost, ok := p.CostMicro("acme/custom-model", 1_000_000, 1_000_000)
	if !ok || cost != 3_000_000 {
		t.Errorf("custom model cost = %d, %v; want 3000000, true", cost, ok)
	}

	// Existing model overridden.
	cost, _ = p.CostMicro("openai/gpt-4o", 1_000_000, 0)
	if cost != 5_000_000 {
		t.Errorf("overridden gpt-4o prompt cost = %d, want 5000000", cost)
	}

	// Untouched defaults survive.
	if _, ok := p.Lookup("deepseek/deepseek-chat"); !ok {
		t.Error("defaults should survive a partial override file")
	}
}

func TestPricingTable_LoadFile_Missing(t *testing.T) {
	p := NewPricingTable()
	if err := p.LoadFile("/nonexistent/pricing.yaml"); err == nil {
		t.Error("LoadFile() should fail for a missing file")
	}
}
