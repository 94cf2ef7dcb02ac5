package validation

import (
	"strings"
	"testing"
)

func TestPath(t *testing.T) {
	tests := []struct {
		path Path
		want string
	}{
		{Path("").Child("name"), "name"},
		{Path("steps").Index(1).Child("name"), "steps[1].name"},
		{Path("steps").Index(0).Child("query_fields").Index(2).Child("name"), "steps[0].query_fields[2].name"},
	}

	for _, tt := range tests {
		if string(tt.path) != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, tt.path)
		}
	}
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	if errs.HasErrors() {
		t.Fatal("Expected no errors")
	}

	errs.Add("name", "", "must not be empty")
	errs.Add(Path("steps").Index(1).Child("url"), strings.Repeat("x", 500), "must not be empty")

	if !errs.HasErrors() || len(errs) != 2 {
		t.Fatalf("Expected 2 errors, got %d", len(errs))
	}
	if got := errs.Error(); got != "name: must not be empty; steps[1].url: must not be empty" {
		t.Errorf("Unexpected message %q", got)
	}
	if errs[1].Field != "steps[1].url" {
		t.Errorf("Expected field steps[1].url, got %s", errs[1].Field)
	}
	if len(errs[1].Value) != maxEchoedValue+3 || !strings.HasSuffix(errs[1].Value, "...") {
		t.Errorf("Expected long value to be shortened, got %d bytes", len(errs[1].Value))
	}
}
