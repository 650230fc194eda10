package models

import "time"

// SubmissionStatus tracks how far a paid submission got through the external steps.
type SubmissionStatus string

const (
	SubmissionStored  SubmissionStatus = "stored"
	SubmissionTracked SubmissionStatus = "tracked"
	SubmissionSorted  SubmissionStatus = "sorted"
	SubmissionError   SubmissionStatus = "error"
)

// SubmissionRecord is the server-side ledger entry for one paid upload,
// keyed by the payment's transaction signature.
type SubmissionRecord struct {
	Tx          string           `json:"tx" msgpack:"tx"`
	Wallet      string           `json:"wallet" msgpack:"wallet"`
	Name        string           `json:"name" msgpack:"name"`
	SizeBytes   int64            `json:"sizeBytes" msgpack:"sizeBytes"`
	WhenISO     string           `json:"whenISO,omitempty" msgpack:"whenISO,omitempty"`
	File        *DriveFile       `json:"file,omitempty" msgpack:"file,omitempty"`
	RowAppended bool             `json:"rowAppended" msgpack:"rowAppended"`
	Status      SubmissionStatus `json:"status" msgpack:"status"`
	LastError   string           `json:"lastError,omitempty" msgpack:"lastError,omitempty"`
	Attempts    int              `json:"attempts" msgpack:"attempts"`
	CreatedAt   time.Time        `json:"createdAt" msgpack:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt" msgpack:"updatedAt"`
}

// Quote is everything a checkout needs to show and enable a payment.
type Quote struct {
	Label           string  `json:"label"`
	Amount          int64   `json:"amount"`
	Mint            string  `json:"mint"`
	Treasury        string  `json:"treasury"`
	Decimals        *uint8  `json:"decimals"`
	AmountBaseUnits *uint64 `json:"amountBaseUnits"`
	Payer           string  `json:"payer,omitempty"`
	Balance         *uint64 `json:"balance"`
	BalanceDisplay  string  `json:"balanceDisplay"`
	CanPay          bool    `json:"canPay"`
}
