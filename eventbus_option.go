package dataplan

import "github.com/ZanzyTHEbar/dataplan-genkit/internal/eventbus"

// WithEventBus publishes lifecycle events on bus. A bus passed here is not
// closed by DataPlan.Close.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(d *DataPlan) {
		d.eventBus = bus
		d.ownsBus = false
	}
}
