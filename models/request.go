package models

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
)

const (
	RequestStatusPending   = "PENDING"
	RequestStatusApproved  = "APPROVED"
	RequestStatusRejected  = "REJECTED"
	RequestStatusCancelled = "CANCELLED"
)

// Contact methods accepted on a public ticket request.
const (
	ContactMethodEmail    = "EMAIL"
	ContactMethodWhatsApp = "WHATSAPP"
	ContactMethodPhone    = "PHONE"
)

type TicketRequest struct {
	ID                     string     `json:"id"`
	ReferenceCode          string     `json:"reference_code"`
	FullName               string     `json:"full_name"`
	Email                  string     `json:"email"`
	Phone                  string     `json:"phone"`
	Message                string     `json:"message,omitempty"`
	PreferredContactMethod string     `json:"preferred_contact_method"`
	Quantity               int        `json:"quantity"`
	EventID                string     `json:"event_id"`
	Status                 string     `json:"status"` // PENDING, APPROVED, REJECTED, CANCELLED
	RequestDate            time.Time  `json:"request_date"`
	ProcessedDate          *time.Time `json:"processed_date,omitempty"`
	ProcessedBy            string     `json:"processed_by,omitempty"`
	OrganizerNotes         string     `json:"organizer_notes,omitempty"`
}

func RequestFromRecord(r *core.Record) *TicketRequest {
	req := &TicketRequest{
		ID:                     r.Id,
		ReferenceCode:          r.GetString("reference_code"),
		FullName:               r.GetString("full_name"),
		Email:                  r.GetString("email"),
		Phone:                  r.GetString("phone"),
		Message:                r.GetString("message"),
		PreferredContactMethod: r.GetString("preferred_contact_method"),
		Quantity:               r.GetInt("quantity"),
		EventID:                r.GetString("event"),
		Status:                 r.GetString("status"),
		RequestDate:            r.GetDateTime("request_date").Time(),
		ProcessedBy:            r.GetString("processed_by"),
		OrganizerNotes:         r.GetString("organizer_notes"),
	}
	if v := r.GetDateTime("processed_date"); !v.IsZero() {
		ts := v.Time()
		req.ProcessedDate = &ts
	}
	return req
}

// CanBeProcessed gates every transition: PENDING is the only non-terminal
// state.
func (r *TicketRequest) CanBeProcessed() bool {
	return r.Status == RequestStatusPending
}

func (r *TicketRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}

func (r *TicketRequest) Approve(organizerID, notes string, now time.Time) {
	r.Status = RequestStatusApproved
	r.ProcessedDate = &now
	r.ProcessedBy = organizerID
	r.OrganizerNotes = notes
}

func (r *TicketRequest) Reject(organizerID, notes string, now time.Time) {
	r.Status = RequestStatusRejected
	r.ProcessedDate = &now
	r.ProcessedBy = organizerID
	r.OrganizerNotes = notes
}

func (r *TicketRequest) Cancel() {
	r.Status = RequestStatusCancelled
}
