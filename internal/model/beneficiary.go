package model

import "time"

type BeneficiaryData struct {
	Name     string  `json:"name"`
	KPP      string  `json:"kpp"`
	OGRN     *string `json:"ogrn,omitempty"`
	IsBranch *bool   `json:"is_branch,omitempty"`
}

type Beneficiary struct {
	ID                string          `json:"id"`
	INN               string          `json:"inn"`
	Data              BeneficiaryData `json:"data"`
	AddedToSettlement bool            `json:"added_to_settlement"`
	ProjectIDs        []string        `json:"project_ids"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Document is a beneficiary document accepted by the bank.
type Document struct {
	ID            string    `json:"id"`
	BeneficiaryID string    `json:"beneficiary_id"`
	Type          string    `json:"type"`
	Number        string    `json:"number"`
	Date          string    `json:"date"`
	ContentType   string    `json:"content_type"`
	UploadedAt    time.Time `json:"uploaded_at"`
}
