// Package schema is the registry of the structured-feature schema: field
// names, kinds, allowed values and the disease vocabulary. Extraction prompts
// are rendered from it and every parsed record is validated against it.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/trialfit/internal/domain/feature"
)

// Kind is the wire type of a field.
type Kind string

const (
	// KindString is a single string value.
	KindString Kind = "string"
	// KindObject is an object of string subfields.
	KindObject Kind = "object"
	// KindObjectList is an ordered list of objects of string subfields.
	KindObjectList Kind = "object_list"
)

// Subfield is a string member of an object field.
type Subfield struct {
	Name        string
	Required    bool
	Enum        []string
	Aliases     map[string]string // lowercased alias -> enum value
	Description string
}

// Field is a top-level schema field.
type Field struct {
	Name        string
	Kind        Kind
	Required    bool
	Critical    bool
	Description string
	Subfields   []Subfield
}

// Violation describes a value the validator had to coerce or drop.
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (v Violation) String() string { return v.Field + ": " + v.Reason }

// Registry holds the schema and the disease vocabulary.
type Registry struct {
	fields []Field
	vocab  map[string]string // normalized synonym -> canonical term
}

// New builds a registry. vocabulary maps a canonical term to its synonyms;
// the canonical term itself always matches.
func New(fields []Field, vocabulary map[string][]string) *Registry {
	r := &Registry{
		fields: fields,
		vocab:  make(map[string]string),
	}
	for canonical, synonyms := range vocabulary {
		r.vocab[normalizeKey(canonical)] = canonical
		for _, s := range synonyms {
			r.vocab[normalizeKey(s)] = canonical
		}
	}
	return r
}

// Default returns the registry for protocol feature records.
func Default() *Registry {
	return New(DefaultFields(), DefaultVocabulary())
}

// DefaultFields declares disease, drug, eligibility criteria and endpoints.
func DefaultFields() []Field {
	return []Field{
		{
			Name:        feature.FieldDisease,
			Kind:        KindString,
			Required:    true,
			Critical:    true,
			Description: "condition or indication under study",
		},
		{
			Name:        feature.FieldDrug,
			Kind:        KindObject,
			Required:    true,
			Critical:    true,
			Description: "investigational product",
			Subfields: []Subfield{
				{Name: "name", Required: true, Description: "drug name as written"},
				{Name: "dosage", Description: "dose and schedule if stated"},
			},
		},
		{
			Name:        feature.FieldEligibility,
			Kind:        KindObjectList,
			Required:    true,
			Description: "every inclusion and exclusion criterion, verbatim, one per item",
			Subfields: []Subfield{
				{Name: "text", Required: true, Description: "criterion text"},
				{
					Name:     "kind",
					Required: true,
					Enum:     []string{string(feature.Inclusion), string(feature.Exclusion)},
					Aliases: map[string]string{
						"include":            string(feature.Inclusion),
						"included":           string(feature.Inclusion),
						"inclusion criteria": string(feature.Inclusion),
						"exclude":            string(feature.Exclusion),
						"excluded":           string(feature.Exclusion),
						"exclusion criteria": string(feature.Exclusion),
					},
				},
			},
		},
		{
			Name:        feature.FieldEndpoints,
			Kind:        KindObjectList,
			Required:    true,
			Critical:    true,
			Description: "study endpoints with their type",
			Subfields: []Subfield{
				{Name: "name", Required: true, Description: "endpoint as written"},
				{
					Name:     "type",
					Required: true,
					Enum:     []string{string(feature.Primary), string(feature.Secondary)},
					Aliases: map[string]string{
						"primary endpoint":   string(feature.Primary),
						"co-primary":         string(feature.Primary),
						"coprimary":          string(feature.Primary),
						"secondary endpoint": string(feature.Secondary),
						"key secondary":      string(feature.Secondary),
						"exploratory":        string(feature.Secondary),
						"tertiary":           string(feature.Secondary),
					},
				},
			},
		},
	}
}

// Fields returns the schema fields in declaration order.
func (r *Registry) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Field looks up a field by name.
func (r *Registry) Field(name string) (Field, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// CriticalFields returns the names of fields flagged critical.
func (r *Registry) CriticalFields() []string {
	var out []string
	for _, f := range r.fields {
		if f.Critical {
			out = append(out, f.Name)
		}
	}
	return out
}

// NormalizeDisease maps a free-text term onto the controlled vocabulary.
func (r *Registry) NormalizeDisease(term string) (string, bool) {
	canonical, ok := r.vocab[normalizeKey(term)]
	return canonical, ok
}

// PromptSchema renders the JSON shape the model must produce.
func (r *Registry) PromptSchema() string {
	var b strings.Builder
	b.WriteString("{\n")
	for i, f := range r.fields {
		fmt.Fprintf(&b, "  %q: ", f.Name)
		switch f.Kind {
		case KindString:
			fmt.Fprintf(&b, "%q", describe(f.Description))
		case KindObject:
			b.WriteString(renderObject(f.Subfields))
		case KindObjectList:
			b.WriteString("[" + renderObject(f.Subfields) + "]")
		}
		if i < len(r.fields)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}

func renderObject(subs []Subfield) string {
	parts := make([]string, 0, len(subs))
	for _, s := range subs {
		val := describe(s.Description)
		if len(s.Enum) > 0 {
			val = strings.Join(s.Enum, "|")
		}
		parts = append(parts, fmt.Sprintf("%q: %q", s.Name, val))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func describe(desc string) string {
	if desc == "" {
		return "string or \"" + feature.Unknown + "\""
	}
	return desc + ", or \"" + feature.Unknown + "\""
}

// SortedVocabulary returns the canonical disease terms, sorted.
func (r *Registry) SortedVocabulary() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range r.vocab {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

func normalizeKey(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			space = b.Len() > 0
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
