package model

// FeeAccount is one borrower's dues for one fee period, owned by the fee ledger.
type FeeAccount struct {
	BorrowerID  int64   `json:"borrower_id" db:"borrower_id"`
	Period      string  `json:"period" db:"period"`
	AmountDue   float64 `json:"amount_due" db:"amount_due"`
	AmountPaid  float64 `json:"amount_paid" db:"amount_paid"`
	UnpaidFines float64 `json:"unpaid_fines" db:"unpaid_fines"`
}
