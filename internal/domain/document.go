package domain

import "strings"

// ProtocolDocument is the raw protocol text handed to the pipeline by an
// ingestion collaborator. The pipeline never mutates it.
type ProtocolDocument struct {
	Text    string `json:"text"`
	TrialID string `json:"trial_id,omitempty"`
	Source  string `json:"source,omitempty"`
}

// IsEmpty reports whether the document carries no readable text.
func (d ProtocolDocument) IsEmpty() bool {
	return strings.TrimSpace(d.Text) == ""
}
