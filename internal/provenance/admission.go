package provenance

// Defaults for the admission policy.
const (
	DefaultQuarantineConfidence = 0.7
	DefaultStoreMinConfidence   = 0.0
)

// AdmissionPolicy gates memory writes by provenance. A candidate below
// StoreMinConfidence is rejected outright; an admitted candidate is
// quarantined when its source is untrusted or its confidence is below
// QuarantineConfidence. Quarantined records are stored but excluded from
// default retrieval.
type AdmissionPolicy struct {
	StoreMinConfidence   float64
	QuarantineConfidence float64
	QuarantinedSources   map[Source]bool
}

// DefaultAdmissionPolicy quarantines LLM-generated content below full review.
func DefaultAdmissionPolicy() AdmissionPolicy {
	return AdmissionPolicy{
		StoreMinConfidence:   DefaultStoreMinConfidence,
		QuarantineConfidence: DefaultQuarantineConfidence,
		QuarantinedSources:   map[Source]bool{SourceLlmGeneration: true},
	}
}

// Admit decides whether the candidate may be stored and whether it must be
// quarantined. Rejection here is a normal, frequent outcome, not an error.
func (ap AdmissionPolicy) Admit(p Provenance) (admitted, quarantined bool) {
	if p.Confidence < ap.StoreMinConfidence {
		return false, false
	}
	if ap.QuarantinedSources[p.Source] || p.Confidence < ap.QuarantineConfidence {
		return true, true
	}
	return true, false
}
