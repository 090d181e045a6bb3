// Package feature defines the structured record extracted from a protocol.
//
// Every field is always present. Missing evidence is the explicit Unknown
// sentinel for scalars and the Unknown flag for lists; nothing is omitted.
package feature

import "strings"

// Unknown is the sentinel for a scalar field without evidence.
const Unknown = "unknown"

// Field names, shared with the schema registry.
const (
	FieldDisease     = "disease"
	FieldDrug        = "drug"
	FieldDrugDosage  = "drug_dosage"
	FieldEligibility = "eligibility_criteria"
	FieldEndpoints   = "endpoints"
	// FieldPrimaryEndpoint is the virtual critical field "at least one primary endpoint".
	FieldPrimaryEndpoint = "primary_endpoint"
)

// Confidence flags how a disease term was resolved.
type Confidence string

const (
	// ConfidenceHigh means the term matched the controlled vocabulary.
	ConfidenceHigh Confidence = "high"
	// ConfidenceLow means free text or no evidence.
	ConfidenceLow Confidence = "low"
)

// Disease is the condition under study.
type Disease struct {
	Term       string     `json:"term"`
	Normalized bool       `json:"normalized"`
	Confidence Confidence `json:"confidence"`
}

// IsUnknown reports whether no disease was found.
func (d Disease) IsUnknown() bool { return isUnknown(d.Term) }

// Drug is the investigational product.
type Drug struct {
	Name   string `json:"name"`
	Dosage string `json:"dosage"`
}

// IsUnknown reports whether no drug was found.
func (d Drug) IsUnknown() bool { return isUnknown(d.Name) }

// CriterionKind tags an eligibility criterion.
type CriterionKind string

const (
	// Inclusion criterion.
	Inclusion CriterionKind = "inclusion"
	// Exclusion criterion.
	Exclusion CriterionKind = "exclusion"
)

// Criterion is a single eligibility rule, kept verbatim.
type Criterion struct {
	Text string        `json:"text"`
	Kind CriterionKind `json:"kind"`
}

// EndpointType is primary or secondary.
type EndpointType string

const (
	// Primary endpoint.
	Primary EndpointType = "primary"
	// Secondary endpoint.
	Secondary EndpointType = "secondary"
)

// Endpoint is a named study endpoint.
type Endpoint struct {
	Name string       `json:"name"`
	Type EndpointType `json:"type"`
}

// CriteriaList is the ordered eligibility list.
type CriteriaList struct {
	Items   []Criterion `json:"items"`
	Unknown bool        `json:"unknown"`
}

// EndpointList is the ordered endpoint list.
type EndpointList struct {
	Items   []Endpoint `json:"items"`
	Unknown bool       `json:"unknown"`
}

// Primary returns the primary endpoints in order.
func (l EndpointList) Primary() []Endpoint {
	return l.ofType(Primary)
}

// Secondary returns the secondary endpoints in order.
func (l EndpointList) Secondary() []Endpoint {
	return l.ofType(Secondary)
}

func (l EndpointList) ofType(t EndpointType) []Endpoint {
	var out []Endpoint
	for _, e := range l.Items {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Record is the structured feature record of one protocol.
type Record struct {
	Disease     Disease      `json:"disease"`
	Drug        Drug         `json:"drug"`
	Eligibility CriteriaList `json:"eligibility_criteria"`
	Endpoints   EndpointList `json:"endpoints"`
}

// NewUnknown returns a record with every field set to its unknown state.
func NewUnknown() Record {
	return Record{
		Disease:     Disease{Term: Unknown, Confidence: ConfidenceLow},
		Drug:        Drug{Name: Unknown, Dosage: Unknown},
		Eligibility: CriteriaList{Items: []Criterion{}, Unknown: true},
		Endpoints:   EndpointList{Items: []Endpoint{}, Unknown: true},
	}
}

// UnknownFields lists every field without evidence, in schema order.
func (r Record) UnknownFields() []string {
	var out []string
	if r.Disease.IsUnknown() {
		out = append(out, FieldDisease)
	}
	if r.Drug.IsUnknown() {
		out = append(out, FieldDrug)
	}
	if isUnknown(r.Drug.Dosage) {
		out = append(out, FieldDrugDosage)
	}
	if r.Eligibility.Unknown {
		out = append(out, FieldEligibility)
	}
	if r.Endpoints.Unknown {
		out = append(out, FieldEndpoints)
	}
	return out
}

// CriticalUnknowns lists the missing critical fields: disease, drug and
// primary endpoint.
func (r Record) CriticalUnknowns() []string {
	var out []string
	if r.Disease.IsUnknown() {
		out = append(out, FieldDisease)
	}
	if r.Drug.IsUnknown() {
		out = append(out, FieldDrug)
	}
	if len(r.Endpoints.Primary()) == 0 {
		out = append(out, FieldPrimaryEndpoint)
	}
	return out
}

// FillUnknown returns r with each unknown field taken from other when other
// has evidence for it. Known fields of r are never overwritten.
func (r Record) FillUnknown(other Record) Record {
	if r.Disease.IsUnknown() && !other.Disease.IsUnknown() {
		r.Disease = other.Disease
	}
	switch {
	case r.Drug.IsUnknown() && !other.Drug.IsUnknown():
		r.Drug = other.Drug
	case isUnknown(r.Drug.Dosage) && !isUnknown(other.Drug.Dosage) &&
		strings.EqualFold(r.Drug.Name, other.Drug.Name):
		r.Drug.Dosage = other.Drug.Dosage
	}
	if r.Eligibility.Unknown && !other.Eligibility.Unknown {
		r.Eligibility = other.Eligibility
	}
	if r.Endpoints.Unknown && !other.Endpoints.Unknown {
		r.Endpoints = other.Endpoints
	}
	return r
}

// Text renders the record for embedding. Field order is fixed and unknown
// fields are skipped, so identical records render identically.
func (r Record) Text() string {
	var parts []string
	if !r.Disease.IsUnknown() {
		parts = append(parts, "disease: "+r.Disease.Term)
	}
	if !r.Drug.IsUnknown() {
		parts = append(parts, "drug: "+r.Drug.Name)
	}
	for _, e := range r.Endpoints.Primary() {
		parts = append(parts, "primary endpoint: "+e.Name)
	}
	for _, e := range r.Endpoints.Secondary() {
		parts = append(parts, "secondary endpoint: "+e.Name)
	}
	for _, c := range r.Eligibility.Items {
		parts = append(parts, string(c.Kind)+": "+c.Text)
	}
	return strings.Join(parts, "\n")
}

func isUnknown(s string) bool {
	return s == "" || s == Unknown
}
