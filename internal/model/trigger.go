package model

import (
	"encoding/json"
	"time"
)

// Status is the stored lifecycle state of a trigger.
type Status string

const (
	StatusActive   Status = "Active"
	StatusExecuted Status = "Executed"
	StatusRefunded Status = "Refunded"
	// StatusExpired is never stored; see Trigger.EffectiveStatus.
	StatusExpired Status = "Expired"
)

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusRefunded
}

// Payout describes the transfer executed when a trigger fires.
// Amount is an integer in the asset's smallest unit, kept as a decimal string.
type Payout struct {
	Amount  string `json:"amount"`
	Token   string `json:"token"`
	Address string `json:"address"`
	Chain   Chain  `json:"chain"`
}

// Trigger pairs a monitored condition with a cross-chain payout.
// Timestamps are unix nanoseconds.
type Trigger struct {
	ID               string    `json:"id"`
	Owner            string    `json:"owner"`
	Condition        Condition `json:"-"`
	Payout           Payout    `json:"payout"`
	FundedAmount     string    `json:"funded_amount"`
	Status           Status    `json:"status"`
	CreatedAt        int64     `json:"created_at"`
	ExpiresAt        int64     `json:"expires_at"`
	ExecutedTx       *string   `json:"executed_tx"`
	AttestationCount uint64    `json:"attestation_count"`
}

// EffectiveStatus returns the status as observed at now. An Active trigger
// past its expiry reads as Expired; the stored status is unchanged.
func (t Trigger) EffectiveStatus(now time.Time) Status {
	if t.Status == StatusActive && now.UnixNano() > t.ExpiresAt {
		return StatusExpired
	}
	return t.Status
}

// Expired reports whether the trigger is past its expiry at now.
func (t Trigger) Expired(now time.Time) bool {
	return now.UnixNano() > t.ExpiresAt
}

// Clone returns a copy that shares no mutable state with t.
func (t Trigger) Clone() Trigger {
	out := t
	if t.ExecutedTx != nil {
		tx := *t.ExecutedTx
		out.ExecutedTx = &tx
	}
	return out
}

// MarshalJSON encodes the condition with its variant tag.
func (t Trigger) MarshalJSON() ([]byte, error) {
	type Alias Trigger
	cond, err := MarshalCondition(t.Condition)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Alias
		Condition json.RawMessage `json:"condition"`
	}{Alias: Alias(t), Condition: cond})
}

// UnmarshalJSON decodes a Trigger including its tagged condition.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	type Alias Trigger
	var a struct {
		Alias
		Condition json.RawMessage `json:"condition"`
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*t = Trigger(a.Alias)
	if len(a.Condition) > 0 && string(a.Condition) != "null" {
		cond, err := UnmarshalCondition(a.Condition)
		if err != nil {
			return err
		}
		t.Condition = cond
	}
	return nil
}

// Stats aggregates trigger counts by stored status.
type Stats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Executed int `json:"executed"`
}
