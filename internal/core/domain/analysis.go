package domain

// Analysis is the AI-derived digest of a text span. OK is false when the
// content is a placeholder produced after a failed analysis call.
type Analysis struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Questions []string `json:"questions"`
	OK        bool     `json:"analysis_ok"`
}

// Normalize replaces nil slices with empty ones.
func (a Analysis) Normalize() Analysis {
	if a.KeyPoints == nil {
		a.KeyPoints = []string{}
	}
	if a.Questions == nil {
		a.Questions = []string{}
	}
	return a
}
