package transactions

import (
	"time"

	"github.com/google/uuid"
)

// Transaction types recorded for each row.
const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

// Transaction is one stored transaction record
type Transaction struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	CreatedAt       time.Time `json:"created_at"`
	TransferNote    string    `json:"transfer_note,omitempty"`
	TransactionType string    `json:"transaction_type"`
	Category        string    `json:"category"`
	Subcategory     string    `json:"subcategory"`
}

// NewID returns a fresh transaction id
func NewID() string {
	return uuid.New().String()
}

// Classified reports whether the record carries a category
func (t Transaction) Classified() bool {
	return t.Category != ""
}
