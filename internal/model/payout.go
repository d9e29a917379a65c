package model

// PayoutSubmission is journaled after a transfer is signed and before it is
// broadcast, so a later attempt can detect that the transfer may already exist.
type PayoutSubmission struct {
	TriggerID   string `json:"trigger_id"`
	Chain       Chain  `json:"chain"`
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
	Nonce       uint64 `json:"nonce"`
	TxHash      string `json:"tx_hash"`
	RawTx       string `json:"raw_tx"`
	SubmittedAt int64  `json:"submitted_at"`
}

// JournalOutcome records how a submission was resolved.
type JournalOutcome string

const (
	JournalConfirmed JournalOutcome = "confirmed"
	JournalDiscarded JournalOutcome = "discarded"
)
