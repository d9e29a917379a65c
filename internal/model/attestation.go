package model

// Attestation is a signed statement that an observation was made at a point in
// time. Attestations are immutable once issued.
type Attestation struct {
	TriggerID       string `json:"trigger_id"`
	Timestamp       int64  `json:"timestamp"`
	APIResponseHash string `json:"api_response_hash"`
	ObservedStatus  string `json:"observed_status"`
	ConditionMet    bool   `json:"condition_met"`
	Signature       string `json:"signature"`
}

// Observation is one reading from a condition source.
type Observation struct {
	Key       string         `json:"key"`
	Status    string         `json:"status"`
	UpdatedAt string         `json:"updated_at,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	// Raw is the response body exactly as received; it is what gets hashed.
	Raw []byte `json:"-"`
}
