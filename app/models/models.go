package models

// AllModels lists every table owned by the application in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Account{},
		&Subscription{},
		&ProcessedEvent{},
		&RegistrationCounter{},
		&CheckoutSession{},
	}
}
