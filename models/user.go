package models

// User roles stored on the users auth collection. Scanners authenticate as
// the organizer that owns the event they validate for.
const (
	RoleOrganizer = "ORGANIZER"
	RoleClient    = "CLIENT"
)
