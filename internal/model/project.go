package model

import "time"

// CharityProject is backed by a bank virtual account; ID is the account code.
type CharityProject struct {
	ID            string    `json:"id"`
	BeneficiaryID string    `json:"beneficiary_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Cap           uint64    `json:"cap"`
	Collected     uint64    `json:"collected"`
	CreatedAt     time.Time `json:"created_at"`
}
