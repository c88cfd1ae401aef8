package spend

import (
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "spend.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEmptyTotals(t *testing.T) {
	s := openTemp(t)
	total, err := s.Totals()
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if total.Requests != 0 || total.Cost != 0 {
		t.Errorf("expected zero totals, got %+v", total)
	}
}

func TestAddAndTotals(t *testing.T) {
	s := openTemp(t)

	if err := s.Add("gpt-4o-mini", 100, 50, 0.001); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add("gpt-4o-mini", 200, 80, 0.002); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add("deepseek-chat", 10, 5, 0.0001); err != nil {
		t.Fatalf("add: %v", err)
	}

	total, err := s.Totals()
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if total.Requests != 3 {
		t.Errorf("requests = %d", total.Requests)
	}
	if total.PromptTokens != 310 || total.CompletionTokens != 135 {
		t.Errorf("tokens = %d/%d", total.PromptTokens, total.CompletionTokens)
	}
}

func TestPerModelOrderedByCost(t *testing.T) {
	s := openTemp(t)

	_ = s.Add("cheap-model", 10, 5, 0.0001)
	_ = s.Add("pricey-model", 1000, 500, 0.5)

	per, err := s.PerModel()
	if err != nil {
		t.Fatalf("per-model: %v", err)
	}
	if len(per) != 2 {
		t.Fatalf("expected 2 models, got %d", len(per))
	}
	if per[0].Model != "pricey-model" {
		t.Errorf("expected highest cost first, got %q", per[0].Model)
	}
}

func TestLedgerPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spend.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Add("gpt-4o", 42, 7, 0.01); err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	total, err := s.Totals()
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if total.Requests != 1 || total.PromptTokens != 42 {
		t.Errorf("ledger not persisted: %+v", total)
	}
}
