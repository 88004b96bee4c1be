package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

// Pipeline order. FINALIZING sits between gate 3 and APPROVED while the
// calendar is confirmed.
const (
	StatusSubmitted        Status = "SUBMITTED"
	StatusPendingAdmin2    Status = "PENDING_ADMIN2"
	StatusPaymentRequested Status = "PAYMENT_REQUESTED"
	StatusPaymentVerified  Status = "PAYMENT_VERIFIED"
	StatusPendingAdmin3    Status = "PENDING_ADMIN3"
	StatusFinalizing       Status = "FINALIZING"
	StatusApproved         Status = "APPROVED"
	StatusRejected         Status = "REJECTED"
)

var pipeline = []Status{
	StatusSubmitted,
	StatusPendingAdmin2,
	StatusPaymentRequested,
	StatusPaymentVerified,
	StatusPendingAdmin3,
	StatusFinalizing,
	StatusApproved,
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	if st == StatusRejected {
		return st, true
	}
	for _, p := range pipeline {
		if p == st {
			return st, true
		}
	}
	return "", false
}

// Rank is the position of s in the pipeline, or -1 for REJECTED.
func (s Status) Rank() int {
	for i, p := range pipeline {
		if p == s {
			return i
		}
	}
	return -1
}

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Rejectable reports whether an admin may still reject the booking. Once
// finalization has started the slots are being confirmed and only the
// reconciler moves the booking on.
func (s Status) Rejectable() bool {
	return !s.Terminal() && s != StatusFinalizing
}

func rejectableStatuses() []Status {
	var out []Status
	for _, p := range pipeline {
		if p.Rejectable() {
			out = append(out, p)
		}
	}
	return out
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

type DocumentsApproval struct {
	ApprovedBy uuid.UUID `json:"approvedBy"`
	ApprovedAt time.Time `json:"approvedAt"`
	Notes      string    `json:"notes,omitempty"`
}

type PaymentApproval struct {
	ApprovedBy      uuid.UUID `json:"approvedBy"`
	ApprovedAt      time.Time `json:"approvedAt"`
	Notes           string    `json:"notes,omitempty"`
	PaymentVerified bool      `json:"paymentVerified"`
}

type FinalApproval struct {
	ApprovedBy uuid.UUID `json:"approvedBy"`
	ApprovedAt time.Time `json:"approvedAt"`
	Notes      string    `json:"notes,omitempty"`
	Finalized  bool      `json:"isFinalized"`
}

type Rejection struct {
	RejectedBy     uuid.UUID `json:"rejectedBy"`
	RejectedAt     time.Time `json:"rejectedAt"`
	Notes          string    `json:"notes,omitempty"`
	PreviousStatus Status    `json:"previousStatus"`
}

type Booking struct {
	ID               uuid.UUID          `json:"id"`
	CustomerID       uuid.UUID          `json:"customerId"`
	HallID           uuid.UUID          `json:"hallId"`
	Date             string             `json:"date"`
	SlotIndices      []int              `json:"slotIndices"`
	EventTime        string             `json:"eventTime,omitempty"`
	DocumentRef      string             `json:"documentRef"`
	CustomerNotes    string             `json:"notes,omitempty"`
	Status           Status             `json:"status"`
	TotalAmount      int64              `json:"totalAmount"`
	PaymentStatus    PaymentStatus      `json:"paymentStatus"`
	TransactionID    *string            `json:"transactionId,omitempty"`
	DocumentsGate    *DocumentsApproval `json:"admin1Approval,omitempty"`
	PaymentGate      *PaymentApproval   `json:"admin2Approval,omitempty"`
	FinalGate        *FinalApproval     `json:"admin3Approval,omitempty"`
	Rejection        *Rejection         `json:"rejection,omitempty"`
	SlotsReleased    bool               `json:"slotsReleased"`
	InvoiceGenerated bool               `json:"invoiceGenerated"`
	InvoiceURL       string             `json:"invoiceUrl,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

func (b *Booking) clone() *Booking {
	c := *b
	c.SlotIndices = append([]int(nil), b.SlotIndices...)
	if b.TransactionID != nil {
		id := *b.TransactionID
		c.TransactionID = &id
	}
	if b.DocumentsGate != nil {
		g := *b.DocumentsGate
		c.DocumentsGate = &g
	}
	if b.PaymentGate != nil {
		g := *b.PaymentGate
		c.PaymentGate = &g
	}
	if b.FinalGate != nil {
		g := *b.FinalGate
		c.FinalGate = &g
	}
	if b.Rejection != nil {
		r := *b.Rejection
		c.Rejection = &r
	}
	return &c
}
