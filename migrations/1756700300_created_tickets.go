package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("tickets")
		collection.Fields.Add(
			&core.TextField{Name: "event_id", Required: true},
			&core.TextField{Name: "user_id", Required: true},
			&core.TextField{Name: "type_id", Required: true},
			&core.TextField{Name: "qr_code"},
			&core.SelectField{
				Name:      "status",
				MaxSelect: 1,
				Values:    []string{"VALID", "CANCELLED"},
			},
			&core.BoolField{Name: "is_purchased"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_tickets_user_id", false, "user_id", "")
		collection.AddIndex("idx_tickets_event_id", false, "event_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
