package sql

import (
	"testing"
)

func TestCheckParameterForInjection(t *testing.T) {
	tests := []struct {
		name            string
		paramName       string
		value           any
		expectInjection bool
	}{
		{"clean ref", "ref", "main", false},
		{"clean branch name", "ref", "alice.feature_revenue", false},
		{"non-string value", "limit", 100, false},
		{"stacked drop", "namespace", "x'; DROP TABLE orders--", true},
		{"tautology", "ref", "' OR '1'='1", true},
		{"union select", "table", "1 UNION SELECT password FROM users", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckParameterForInjection(tt.paramName, tt.value)
			if tt.expectInjection {
				if result == nil || !result.IsSQLi {
					t.Fatalf("expected injection to be detected for %v", tt.value)
				}
				if result.ParamName != tt.paramName {
					t.Errorf("ParamName = %q, want %q", result.ParamName, tt.paramName)
				}
				return
			}
			if result != nil {
				t.Errorf("unexpected injection result: %+v", result)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"main", "bauplan", "alice.dev-branch", "feature/revenue_q3"}
	for _, v := range valid {
		if err := ValidateName("ref", v); err != nil {
			t.Errorf("ValidateName(%q) unexpected error: %v", v, err)
		}
	}

	invalid := []string{"", "main; drop", "name with space", "'quoted'", "-leading"}
	for _, v := range invalid {
		if err := ValidateName("ref", v); err == nil {
			t.Errorf("ValidateName(%q) expected error", v)
		}
	}
}
