package domain

import (
	"testing"
)

func TestNewTransaction(t *testing.T) {
	tests := []struct {
		name     string
		labels   []string
		expected Transaction
	}{
		{"Sorted and trimmed", []string{" Mass", "Atelectasis "}, Transaction{"Atelectasis", "Mass"}},
		{"Duplicates collapsed", []string{"Edema", "Edema", " Edema"}, Transaction{"Edema"}},
		{"Blanks dropped", []string{"", "  ", "Nodule"}, Transaction{"Nodule"}},
		{"All blank", []string{" "}, Transaction{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewTransaction(tt.labels...)
			if len(got) != len(tt.expected) {
				t.Fatalf("Expected %v, got %v", tt.expected, got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("Expected %v, got %v", tt.expected, got)
				}
			}
		})
	}
}

func TestTransactionContains(t *testing.T) {
	tx := NewTransaction("Pneumonia", "Consolidation", "Infiltration")

	if !tx.Contains("Consolidation") {
		t.Errorf("Expected transaction to contain Consolidation")
	}
	if tx.Contains("Edema") {
		t.Errorf("Did not expect transaction to contain Edema")
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	items := SortItems([]Item{"Nodule", "Mass", "Atelectasis"})
	sig := Signature(items)

	if sig != "Atelectasis|Mass|Nodule" {
		t.Errorf("Unexpected signature %s", sig)
	}

	parsed := ParseSignature(sig)
	if Signature(parsed) != sig {
		t.Errorf("Expected %s after round trip, got %s", sig, Signature(parsed))
	}

	if ParseSignature("") != nil {
		t.Errorf("Expected empty signature to parse to nil")
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		input    string
		expected Metric
		wantErr  bool
	}{
		{"confidence", MetricConfidence, false},
		{" LIFT ", MetricLift, false},
		{"support", MetricSupport, false},
		{"leverage", MetricLeverage, false},
		{"accuracy", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMetric(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestMiningParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  MiningParams
		wantErr bool
	}{
		{"Valid", MiningParams{MinSupport: 0.01, Metric: MetricConfidence, MinThreshold: 0.3}, false},
		{"Support of one", MiningParams{MinSupport: 1, Metric: MetricLift, MinThreshold: 1}, false},
		{"Zero support", MiningParams{MinSupport: 0, Metric: MetricConfidence}, true},
		{"Support above one", MiningParams{MinSupport: 1.5, Metric: MetricConfidence}, true},
		{"Unknown metric", MiningParams{MinSupport: 0.1, Metric: "accuracy"}, true},
		{"Negative threshold", MiningParams{MinSupport: 0.1, Metric: MetricConfidence, MinThreshold: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRuleValueAndString(t *testing.T) {
	rule := Rule{
		Antecedent: []Item{"Cardiomegaly"},
		Consequent: []Item{"Edema", "Heart_Failure"},
		Support:    0.2,
		Confidence: 0.8,
		Lift:       2.5,
		Leverage:   0.12,
	}

	if rule.Value(MetricLift) != 2.5 || rule.Value(MetricConfidence) != 0.8 || rule.Value(MetricSupport) != 0.2 {
		t.Errorf("Rule.Value returned unexpected measures")
	}
	if !rule.HasAntecedent("Cardiomegaly") || rule.HasAntecedent("Edema") {
		t.Errorf("HasAntecedent gave wrong membership")
	}
	if rule.String() != "Cardiomegaly → Edema, Heart_Failure" {
		t.Errorf("Unexpected rule string %q", rule.String())
	}
}

func TestDisplayLabel(t *testing.T) {
	if got := DisplayLabel("Pleural_Effusion"); got != "Pleural Effusion" {
		t.Errorf("Expected 'Pleural Effusion', got %q", got)
	}
}

func TestCheckItem(t *testing.T) {
	if err := CheckItem("Pleural_Effusion"); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	err := CheckItem("Mass|Nodule")
	if err == nil {
		t.Fatal("Expected error for label containing the separator")
	}
	if ErrorCode(err) != ErrData {
		t.Errorf("Expected code %s, got %s", ErrData, ErrorCode(err))
	}
}
