package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}
		events, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("ticket_requests")

		collection.Fields.Add(
			&core.TextField{Name: "reference_code", Required: true},
			&core.TextField{Name: "full_name", Required: true},
			&core.EmailField{Name: "email", Required: true},
			&core.TextField{Name: "phone", Required: true},
			&core.TextField{Name: "message"},
			&core.SelectField{
				Name:      "preferred_contact_method",
				MaxSelect: 1,
				Values:    []string{"EMAIL", "WHATSAPP", "PHONE"},
			},
			&core.NumberField{Name: "quantity", Required: true, OnlyInt: true, Min: types.Pointer(1.0), Max: types.Pointer(10.0)},
			&core.RelationField{
				Name:         "event",
				Required:     true,
				MaxSelect:    1,
				CollectionId: events.Id,
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"PENDING", "APPROVED", "REJECTED", "CANCELLED"},
			},
			&core.DateField{Name: "request_date", Required: true},
			&core.DateField{Name: "processed_date"},
			&core.RelationField{
				Name:         "processed_by",
				MaxSelect:    1,
				CollectionId: users.Id,
			},
			&core.TextField{Name: "organizer_notes"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_requests_reference", true, "reference_code", "")
		collection.AddIndex("idx_requests_event_status", false, "event, status", "")
		collection.AddIndex("idx_requests_email", false, "email", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("ticket_requests")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
