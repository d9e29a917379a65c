package model

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestTriggerJSONConditionTag(t *testing.T) {
	tx := "0xabc"
	original := Trigger{
		ID:    "trig_00000001",
		Owner: "alice.testnet",
		Condition: FlightCancellation{
			FlightNumber: "AA1234",
			FlightDate:   "2026-02-15",
		},
		Payout: Payout{
			Amount:  "500000000000000000",
			Token:   "ETH",
			Address: "0x1111111111111111111111111111111111111111",
			Chain:   ChainBase,
		},
		FundedAmount:     "1000000000000000000000000",
		Status:           StatusExecuted,
		CreatedAt:        1700000000000000000,
		ExpiresAt:        1702592000000000000,
		ExecutedTx:       &tx,
		AttestationCount: 3,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal map failed: %v", err)
	}
	cond, ok := raw["condition"].(map[string]interface{})
	if !ok {
		t.Fatalf("condition should be an object: %s", data)
	}
	if cond["condition_type"] != "FlightCancellation" {
		t.Fatalf("condition_type mismatch: %v", cond["condition_type"])
	}
	payout := raw["payout"].(map[string]interface{})
	if _, ok := payout["amount"].(string); !ok {
		t.Fatalf("payout amount should be string")
	}

	var decoded Trigger
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
}

func TestUnmarshalUnknownCondition(t *testing.T) {
	cond, err := UnmarshalCondition([]byte(`{"condition_type":"WeatherAlert","region":"NYC"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unknown, ok := cond.(UnknownCondition)
	if !ok {
		t.Fatalf("expected UnknownCondition, got %T", cond)
	}
	if unknown.Kind() != "WeatherAlert" || unknown.SourceKey() != "" {
		t.Fatalf("unexpected unknown condition: %+v", unknown)
	}
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tr := Trigger{Status: StatusActive, ExpiresAt: now.Add(time.Hour).UnixNano()}
	if got := tr.EffectiveStatus(now); got != StatusActive {
		t.Fatalf("status = %s, want Active", got)
	}
	if got := tr.EffectiveStatus(now.Add(2 * time.Hour)); got != StatusExpired {
		t.Fatalf("status = %s, want Expired", got)
	}

	tr.Status = StatusExecuted
	if got := tr.EffectiveStatus(now.Add(2 * time.Hour)); got != StatusExecuted {
		t.Fatalf("terminal status should not read as expired, got %s", got)
	}
}

func TestCloneDetachesExecutedTx(t *testing.T) {
	tx := "0x01"
	tr := Trigger{ExecutedTx: &tx}
	cp := tr.Clone()
	*cp.ExecutedTx = "0x02"
	if *tr.ExecutedTx != "0x01" {
		t.Fatalf("clone shares executed_tx")
	}
}
