package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("payments")
		collection.Fields.Add(
			&core.TextField{Name: "ticket_id", Required: true},
			&core.TextField{Name: "user_id", Required: true},
			&core.NumberField{Name: "amount"},
			&core.SelectField{
				Name:      "payment_method",
				MaxSelect: 1,
				Values:    []string{"ESEWA", "KHALTI", "CARD", "FONEPAY", "CASH"},
			},
			&core.SelectField{
				Name:      "payment_status",
				MaxSelect: 1,
				Values:    []string{"PENDING", "SUCCESS", "FAILED"},
			},
			&core.TextField{Name: "transaction_uuid"},
			&core.TextField{Name: "signature"},
			&core.DateField{Name: "payment_date"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// One payment row per ticket; one payment attempt per transaction uuid.
		collection.AddIndex("idx_payments_ticket_id", true, "ticket_id", "")
		collection.AddIndex("idx_payments_transaction_uuid", true, "transaction_uuid", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("payments")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
