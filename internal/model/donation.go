package model

import "time"

type DonationState string

const (
	DonationAwaitingPayment DonationState = "awaiting_payment"
	DonationIdentifying     DonationState = "identifying"
	DonationCredited        DonationState = "credited"
	DonationAbandoned       DonationState = "abandoned"
)

func (s DonationState) Terminal() bool {
	return s == DonationCredited || s == DonationAbandoned
}

// PendingDonation is the intent recorded when a QR code is issued. Amount is
// what the QR code encodes and what gets credited.
type PendingDonation struct {
	QRCodeID  string        `json:"qr_code_id"`
	ProjectID string        `json:"project_id"`
	Amount    uint64        `json:"amount"`
	State     DonationState `json:"state"`
	PaymentID string        `json:"payment_id,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Credited  bool          `json:"credited"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
