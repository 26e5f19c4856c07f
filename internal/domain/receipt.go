package domain

import (
	"context"
	"time"
)

type ReceiptStatus string

const (
	ReceiptInReview ReceiptStatus = "en_revision"
	ReceiptAccepted ReceiptStatus = "aceptada"
	ReceiptRejected ReceiptStatus = "rechazada"
)

func (s ReceiptStatus) Valid() bool {
	switch s {
	case ReceiptInReview, ReceiptAccepted, ReceiptRejected:
		return true
	}
	return false
}

// Receipt is an expense receipt owned by a single user.
type Receipt struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	CompanyName string        `json:"companyName"`
	FolioNumber string        `json:"folioNumber"`
	Date        time.Time     `json:"date"`
	Description string        `json:"description"`
	TotalAmount float64       `json:"totalAmount"`
	ImageURL    *string       `json:"imageUrl"`
	ImageKey    string        `json:"-"`
	Status      ReceiptStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ReceiptStats partitions an owner's receipts by status. TotalAmount sums
// accepted receipts only.
type ReceiptStats struct {
	TotalReceipts int     `json:"totalReceipts"`
	EnRevision    int     `json:"enRevision"`
	Aceptadas     int     `json:"aceptadas"`
	Rechazadas    int     `json:"rechazadas"`
	TotalAmount   float64 `json:"totalAmount"`
}

// ReceiptRepository scopes every read and write to the owner.
type ReceiptRepository interface {
	Create(ctx context.Context, r *Receipt) error
	Get(ctx context.Context, id, ownerID string) (*Receipt, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Receipt, error)
	Update(ctx context.Context, r *Receipt) error
	Delete(ctx context.Context, id, ownerID string) error
	Stats(ctx context.Context, ownerID string) (*ReceiptStats, error)
}
