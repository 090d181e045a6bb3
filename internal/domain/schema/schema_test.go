package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/kailas-cloud/trialfit/internal/domain/feature"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return m
}

func hasViolation(vs []Violation, field string) bool {
	for _, v := range vs {
		if v.Field == field {
			return true
		}
	}
	return false
}

func TestValidate_FullRecord(t *testing.T) {
	reg := Default()
	raw := decode(t, `{
		"disease": "non-small cell lung cancer",
		"drug": {"name": "Pembrolizumab", "dosage": "200 mg Q3W"},
		"eligibility_criteria": [
			{"text": "Age >= 18 years", "kind": "inclusion"},
			{"text": "Active autoimmune disease", "kind": "Exclusion"}
		],
		"endpoints": [
			{"name": "Overall survival", "type": "primary"},
			{"name": "PK parameters", "type": "exploratory"}
		]
	}`)

	rec, vs := reg.Validate(raw)
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %v", vs)
	}
	if rec.Disease.Term != "NSCLC" || !rec.Disease.Normalized || rec.Disease.Confidence != feature.ConfidenceHigh {
		t.Errorf("disease not normalized: %+v", rec.Disease)
	}
	if rec.Drug.Name != "Pembrolizumab" || rec.Drug.Dosage != "200 mg Q3W" {
		t.Errorf("drug = %+v", rec.Drug)
	}
	if len(rec.Eligibility.Items) != 2 || rec.Eligibility.Items[1].Kind != feature.Exclusion {
		t.Errorf("eligibility = %+v", rec.Eligibility)
	}
	if got := rec.Endpoints.Items[1].Type; got != feature.Secondary {
		t.Errorf("exploratory should map to secondary, got %q", got)
	}
}

func TestValidate_MissingFieldsBecomeUnknown(t *testing.T) {
	rec, vs := Default().Validate(map[string]any{})

	if !rec.Disease.IsUnknown() || !rec.Drug.IsUnknown() {
		t.Errorf("expected unknown scalars, got %+v", rec)
	}
	if !rec.Eligibility.Unknown || !rec.Endpoints.Unknown {
		t.Error("expected unknown lists")
	}
	for _, f := range []string{feature.FieldDisease, feature.FieldDrug, feature.FieldEligibility, feature.FieldEndpoints} {
		if !hasViolation(vs, f) {
			t.Errorf("expected violation for %s, got %v", f, vs)
		}
	}
}

func TestValidate_ExplicitUnknownIsNotViolation(t *testing.T) {
	raw := decode(t, `{"disease": "Not stated", "drug": {"name": "unknown", "dosage": "unknown"},
		"eligibility_criteria": [], "endpoints": []}`)

	rec, vs := Default().Validate(raw)
	if len(vs) != 0 {
		t.Errorf("unexpected violations: %v", vs)
	}
	if got := rec.CriticalUnknowns(); len(got) != 3 {
		t.Errorf("CriticalUnknowns = %v", got)
	}
}

func TestValidate_FreeTextDiseaseLowConfidence(t *testing.T) {
	rec, _ := Default().Validate(map[string]any{"disease": "Fibrodysplasia ossificans progressiva"})
	if rec.Disease.Normalized || rec.Disease.Confidence != feature.ConfidenceLow {
		t.Errorf("expected free-text disease, got %+v", rec.Disease)
	}
	if rec.Disease.Term != "Fibrodysplasia ossificans progressiva" {
		t.Errorf("term must be kept verbatim, got %q", rec.Disease.Term)
	}
}

func TestValidate_InvalidItemsDropped(t *testing.T) {
	raw := decode(t, `{"endpoints": [
		{"name": "Overall survival", "type": "primary"},
		{"name": "Quality of life", "type": "sometimes"},
		"just a string"
	]}`)

	rec, vs := Default().Validate(raw)
	if len(rec.Endpoints.Items) != 1 {
		t.Fatalf("expected one valid endpoint, got %+v", rec.Endpoints.Items)
	}
	if !hasViolation(vs, "endpoints[1].type") || !hasViolation(vs, "endpoints[2]") {
		t.Errorf("violations = %v", vs)
	}
}

func TestValidate_WrongTypes(t *testing.T) {
	raw := decode(t, `{"disease": 42, "drug": ["a"], "eligibility_criteria": "age > 18", "unexpected": 1}`)

	rec, vs := Default().Validate(raw)
	if !rec.Disease.IsUnknown() || !rec.Drug.IsUnknown() || !rec.Eligibility.Unknown {
		t.Errorf("wrongly typed values must become unknown: %+v", rec)
	}
	for _, f := range []string{"disease", "drug", "eligibility_criteria", "unexpected"} {
		if !hasViolation(vs, f) {
			t.Errorf("missing violation for %s: %v", f, vs)
		}
	}
}

func TestValidate_LenientShapes(t *testing.T) {
	raw := decode(t, `{
		"drug": "Osimertinib",
		"eligibility_criteria": {"inclusion": ["EGFR mutation"], "exclusion": ["Prior TKI"]}
	}`)

	rec, _ := Default().Validate(raw)
	if rec.Drug.Name != "Osimertinib" || rec.Drug.Dosage != feature.Unknown {
		t.Errorf("drug = %+v", rec.Drug)
	}
	want := []feature.Criterion{
		{Text: "EGFR mutation", Kind: feature.Inclusion},
		{Text: "Prior TKI", Kind: feature.Exclusion},
	}
	if len(rec.Eligibility.Items) != 2 || rec.Eligibility.Items[0] != want[0] || rec.Eligibility.Items[1] != want[1] {
		t.Errorf("eligibility = %+v", rec.Eligibility.Items)
	}
}

func TestNormalizeDisease(t *testing.T) {
	reg := Default()
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Non-Small Cell Lung Cancer", "NSCLC", true},
		{"nsclc", "NSCLC", true},
		{"  T2DM ", "Type 2 diabetes", true},
		{"Alzheimer's Disease", "Alzheimer's disease", true},
		{"something rare", "", false},
	}
	for _, tt := range tests {
		got, ok := reg.NormalizeDisease(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeDisease(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPromptSchema_ListsEveryField(t *testing.T) {
	reg := Default()
	ps := reg.PromptSchema()
	for _, f := range reg.Fields() {
		if !strings.Contains(ps, `"`+f.Name+`"`) {
			t.Errorf("prompt schema missing %s:\n%s", f.Name, ps)
		}
	}
	if !strings.Contains(ps, "inclusion|exclusion") || !strings.Contains(ps, "primary|secondary") {
		t.Errorf("prompt schema missing enums:\n%s", ps)
	}
}

func TestCriticalFields(t *testing.T) {
	got := Default().CriticalFields()
	want := []string{feature.FieldDisease, feature.FieldDrug, feature.FieldEndpoints}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("CriticalFields = %v, want %v", got, want)
	}
}

func TestEncode_ValidatesBackToSameRecord(t *testing.T) {
	reg := Default()
	rec, _ := reg.Validate(decode(t, `{
		"disease": "NSCLC",
		"drug": {"name": "Pembrolizumab", "dosage": "unknown"},
		"eligibility_criteria": [{"text": "Age >= 18 years", "kind": "inclusion"}],
		"endpoints": "unknown"
	}`))

	again, vs := reg.Validate(Encode(rec))
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %v", vs)
	}
	if again.Disease != rec.Disease || again.Drug != rec.Drug {
		t.Errorf("scalars changed: %+v vs %+v", again, rec)
	}
	if len(again.Eligibility.Items) != 1 || !again.Endpoints.Unknown {
		t.Errorf("lists changed: %+v", again)
	}
}
