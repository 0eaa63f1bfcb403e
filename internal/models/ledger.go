package models

import (
	"time"
)

// LedgerEntry is one identity's credit balance.
type LedgerEntry struct {
	Identity  string    `json:"identity" db:"identity"`
	Balance   int64     `json:"balance" db:"balance"`
	Email     *string   `json:"email,omitempty" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BalanceResponse is returned by the balance read endpoint.
type BalanceResponse struct {
	Credits   int64     `json:"credits"`
	UpdatedAt time.Time `json:"updatedAt"`
}
