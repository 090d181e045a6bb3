package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kailas-cloud/trialfit/internal/domain/feature"
)

// unknownTokens are the strings a model uses for "no evidence".
var unknownTokens = map[string]bool{
	"":              true,
	feature.Unknown: true,
	"n/a":           true,
	"na":            true,
	"none":          true,
	"null":          true,
	"not stated":    true,
	"not specified": true,
	"not reported":  true,
	"not available": true,
}

// IsUnknownToken reports whether s means "no evidence".
func IsUnknownToken(s string) bool {
	return unknownTokens[strings.ToLower(strings.TrimSpace(s))]
}

// Validate coerces a parsed model response into a record. Every schema field
// ends up present: values that are missing or fail validation become unknown
// and are reported as violations. Violations never abort validation.
func (r *Registry) Validate(raw map[string]any) (feature.Record, []Violation) {
	rec := feature.NewUnknown()
	var vs []Violation

	for _, f := range r.fields {
		val, ok := raw[f.Name]
		if !ok || val == nil {
			if f.Required {
				vs = append(vs, Violation{Field: f.Name, Reason: "missing"})
			}
			continue
		}
		switch f.Kind {
		case KindString:
			s, ok := val.(string)
			if !ok {
				vs = append(vs, Violation{Field: f.Name, Reason: fmt.Sprintf("expected string, got %T", val)})
				continue
			}
			r.assignString(&rec, f.Name, s)
		case KindObject:
			obj, objVs := r.object(f, val)
			vs = append(vs, objVs...)
			if obj != nil {
				r.assignObject(&rec, f.Name, obj)
			}
		case KindObjectList:
			items, listVs := r.objectList(f, val)
			vs = append(vs, listVs...)
			r.assignList(&rec, f.Name, items)
		}
	}

	for name := range raw {
		if _, ok := r.Field(name); !ok {
			vs = append(vs, Violation{Field: name, Reason: "unexpected field"})
		}
	}
	slices.SortStableFunc(vs, func(a, b Violation) int { return strings.Compare(a.Field, b.Field) })
	return rec, vs
}

// object validates a single object value. A bare string is accepted as the
// first required subfield. Returns nil when the value carries no evidence.
func (r *Registry) object(f Field, val any) (map[string]string, []Violation) {
	var m map[string]any
	switch v := val.(type) {
	case map[string]any:
		m = v
	case string:
		if len(f.Subfields) == 0 {
			return nil, []Violation{{Field: f.Name, Reason: "object has no subfields"}}
		}
		m = map[string]any{f.Subfields[0].Name: v}
	default:
		return nil, []Violation{{Field: f.Name, Reason: fmt.Sprintf("expected object, got %T", val)}}
	}
	return r.subfields(f.Name, f.Subfields, m)
}

func (r *Registry) subfields(path string, subs []Subfield, m map[string]any) (map[string]string, []Violation) {
	out := make(map[string]string, len(subs))
	var vs []Violation
	for _, s := range subs {
		name := path + "." + s.Name
		raw, ok := m[s.Name]
		str, isStr := raw.(string)
		if isStr && IsUnknownToken(str) {
			// explicit "unknown" is valid evidence of absence
			if s.Required {
				return nil, vs
			}
			out[s.Name] = feature.Unknown
			continue
		}
		if !ok || raw == nil {
			if s.Required {
				return nil, append(vs, Violation{Field: name, Reason: "missing"})
			}
			out[s.Name] = feature.Unknown
			continue
		}
		if !isStr {
			if s.Required {
				return nil, append(vs, Violation{Field: name, Reason: fmt.Sprintf("expected string, got %T", raw)})
			}
			vs = append(vs, Violation{Field: name, Reason: fmt.Sprintf("expected string, got %T", raw)})
			out[s.Name] = feature.Unknown
			continue
		}
		str = strings.TrimSpace(str)
		if len(s.Enum) > 0 {
			canonical, ok := s.resolve(str)
			if !ok {
				return nil, append(vs, Violation{Field: name, Reason: fmt.Sprintf("value %q not in %v", str, s.Enum)})
			}
			str = canonical
		}
		out[s.Name] = str
	}
	return out, vs
}

// resolve maps a value onto the enum, case-insensitively, through aliases.
func (s Subfield) resolve(v string) (string, bool) {
	lv := strings.ToLower(v)
	for _, e := range s.Enum {
		if lv == e {
			return e, true
		}
	}
	if a, ok := s.Aliases[lv]; ok {
		return a, true
	}
	return "", false
}

// objectList validates a list. Invalid items are dropped. The grouped shape
// {"inclusion": [...], "exclusion": [...]} is accepted for lists whose
// enum subfield names the groups.
func (r *Registry) objectList(f Field, val any) ([]map[string]string, []Violation) {
	var list []any
	switch v := val.(type) {
	case []any:
		list = v
	case map[string]any:
		grouped, ok := ungroup(f, v)
		if !ok {
			return nil, []Violation{{Field: f.Name, Reason: "expected list, got object"}}
		}
		list = grouped
	default:
		return nil, []Violation{{Field: f.Name, Reason: fmt.Sprintf("expected list, got %T", val)}}
	}

	var (
		out []map[string]string
		vs  []Violation
	)
	for i, item := range list {
		path := fmt.Sprintf("%s[%d]", f.Name, i)
		m, ok := item.(map[string]any)
		if !ok {
			vs = append(vs, Violation{Field: path, Reason: fmt.Sprintf("expected object, got %T", item)})
			continue
		}
		obj, itemVs := r.subfields(path, f.Subfields, m)
		vs = append(vs, itemVs...)
		if obj != nil {
			out = append(out, obj)
		}
	}
	return out, vs
}

// ungroup flattens {"<enum value>": ["text", ...]} into a list of objects.
func ungroup(f Field, m map[string]any) ([]any, bool) {
	if len(f.Subfields) < 2 {
		return nil, false
	}
	textSub, enumSub := f.Subfields[0], f.Subfields[1]
	if len(enumSub.Enum) == 0 {
		return nil, false
	}
	var out []any
	for _, group := range enumSub.Enum {
		items, ok := m[group].([]any)
		if !ok {
			continue
		}
		for _, it := range items {
			s, ok := it.(string)
			if !ok {
				continue
			}
			out = append(out, map[string]any{textSub.Name: s, enumSub.Name: group})
		}
	}
	return out, len(out) > 0
}

func (r *Registry) assignString(rec *feature.Record, name, s string) {
	if name != feature.FieldDisease {
		return
	}
	s = strings.TrimSpace(s)
	if IsUnknownToken(s) {
		return
	}
	if canonical, ok := r.NormalizeDisease(s); ok {
		rec.Disease = feature.Disease{Term: canonical, Normalized: true, Confidence: feature.ConfidenceHigh}
		return
	}
	rec.Disease = feature.Disease{Term: s, Confidence: feature.ConfidenceLow}
}

func (r *Registry) assignObject(rec *feature.Record, name string, obj map[string]string) {
	if name != feature.FieldDrug {
		return
	}
	rec.Drug = feature.Drug{Name: obj["name"], Dosage: obj["dosage"]}
	if rec.Drug.Dosage == "" {
		rec.Drug.Dosage = feature.Unknown
	}
}

func (r *Registry) assignList(rec *feature.Record, name string, items []map[string]string) {
	if len(items) == 0 {
		return
	}
	switch name {
	case feature.FieldEligibility:
		list := make([]feature.Criterion, 0, len(items))
		for _, it := range items {
			list = append(list, feature.Criterion{Text: it["text"], Kind: feature.CriterionKind(it["kind"])})
		}
		rec.Eligibility = feature.CriteriaList{Items: list}
	case feature.FieldEndpoints:
		list := make([]feature.Endpoint, 0, len(items))
		for _, it := range items {
			list = append(list, feature.Endpoint{Name: it["name"], Type: feature.EndpointType(it["type"])})
		}
		rec.Endpoints = feature.EndpointList{Items: list}
	}
}

// Encode renders rec in the raw schema shape that Validate accepts, with
// unknown fields written as the Unknown token.
func Encode(rec feature.Record) map[string]any {
	out := map[string]any{
		feature.FieldDisease: rec.Disease.Term,
		feature.FieldDrug: map[string]any{
			"name":   rec.Drug.Name,
			"dosage": rec.Drug.Dosage,
		},
		feature.FieldEligibility: feature.Unknown,
		feature.FieldEndpoints:   feature.Unknown,
	}
	if rec.Disease.IsUnknown() {
		out[feature.FieldDisease] = feature.Unknown
	}
	if rec.Drug.IsUnknown() {
		out[feature.FieldDrug] = feature.Unknown
	}
	if !rec.Eligibility.Unknown && len(rec.Eligibility.Items) > 0 {
		items := make([]any, 0, len(rec.Eligibility.Items))
		for _, c := range rec.Eligibility.Items {
			items = append(items, map[string]any{"text": c.Text, "kind": string(c.Kind)})
		}
		out[feature.FieldEligibility] = items
	}
	if !rec.Endpoints.Unknown && len(rec.Endpoints.Items) > 0 {
		items := make([]any, 0, len(rec.Endpoints.Items))
		for _, e := range rec.Endpoints.Items {
			items = append(items, map[string]any{"name": e.Name, "type": string(e.Type)})
		}
		out[feature.FieldEndpoints] = items
	}
	return out
}
