package models

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

const (
	TicketStatusValid     = "VALID"
	TicketStatusUsed      = "USED"
	TicketStatusCancelled = "CANCELLED"
	TicketStatusExpired   = "EXPIRED"
)

type Ticket struct {
	ID           string          `json:"id"`
	TicketCode   string          `json:"ticket_code"`
	QrToken      string          `json:"-"`
	EventID      string          `json:"event_id"`
	ClientID     string          `json:"client_id"`
	Price        decimal.Decimal `json:"price"`
	Status       string          `json:"status"` // VALID, USED, CANCELLED, EXPIRED
	PurchaseDate time.Time       `json:"purchase_date"`
	UsedAt       *time.Time      `json:"used_at,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	ValidatedBy  string          `json:"validated_by,omitempty"`
}

func TicketFromRecord(r *core.Record) *Ticket {
	t := &Ticket{
		ID:           r.Id,
		TicketCode:   r.GetString("ticket_code"),
		QrToken:      r.GetString("qr_token"),
		EventID:      r.GetString("event"),
		ClientID:     r.GetString("client"),
		Price:        decimal.NewFromFloat(r.GetFloat("price")),
		Status:       r.GetString("status"),
		PurchaseDate: r.GetDateTime("purchase_date").Time(),
		ValidatedBy:  r.GetString("validated_by"),
	}
	if v := r.GetDateTime("used_at"); !v.IsZero() {
		ts := v.Time()
		t.UsedAt = &ts
	}
	if v := r.GetDateTime("cancelled_at"); !v.IsZero() {
		ts := v.Time()
		t.CancelledAt = &ts
	}
	return t
}

// MarkUsed transitions VALID -> USED. The transition is monotonic; callers
// must have checked the current status first.
func (t *Ticket) MarkUsed(validatorID string, now time.Time) {
	t.Status = TicketStatusUsed
	t.UsedAt = &now
	t.ValidatedBy = validatorID
}

func (t *Ticket) Cancel(now time.Time) {
	t.Status = TicketStatusCancelled
	t.CancelledAt = &now
}

func (t *Ticket) IsValid() bool {
	return t.Status == TicketStatusValid
}

// ExpiredAt reports whether a still-VALID ticket is past its usable window:
// event date plus the entry grace period.
func (t *Ticket) ExpiredAt(eventDate time.Time, grace time.Duration, now time.Time) bool {
	return t.Status == TicketStatusValid && eventDate.Add(grace).Before(now)
}
