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

		collection := core.NewBaseCollection("tickets")

		collection.Fields.Add(
			&core.TextField{Name: "ticket_code", Required: true},
			&core.TextField{Name: "qr_token", Required: true},
			&core.RelationField{
				Name:         "event",
				Required:     true,
				MaxSelect:    1,
				CollectionId: events.Id,
			},
			&core.RelationField{
				Name:         "client",
				Required:     true,
				MaxSelect:    1,
				CollectionId: users.Id,
			},
			&core.NumberField{Name: "price", Min: types.Pointer(0.0)},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"VALID", "USED", "CANCELLED", "EXPIRED"},
			},
			&core.DateField{Name: "purchase_date", Required: true},
			&core.DateField{Name: "used_at"},
			&core.DateField{Name: "cancelled_at"},
			&core.RelationField{
				Name:         "validated_by",
				MaxSelect:    1,
				CollectionId: users.Id,
			},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_tickets_code", true, "ticket_code", "")
		collection.AddIndex("idx_tickets_qr_token", true, "qr_token", "")
		collection.AddIndex("idx_tickets_event", false, "event", "")
		collection.AddIndex("idx_tickets_client", false, "client", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
