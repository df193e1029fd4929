// Package doorbell turns MQTT messages into momentary doorbell ring events.
//
// Each configured entry names a topic filter and an optional display name.
// The bridge keeps one Subscription per valid entry and, while started,
// emits a ring event whenever a message on that filter carries exactly
// "1" or "true". Every other payload is ignored; there is no "off" state.
//
//	┌────────────┐  payload   ┌────────────────┐  events.Event  ┌──────────┐
//	│ MQTT broker│───────────►│ doorbell.Bridge│───────────────►│ EventSink│
//	└────────────┘            └────────────────┘                └──────────┘
//
// # Lifecycle
//
//	Unsubscribed --Start--> Subscribing --> Subscribed --Stop--> Unsubscribed
//
// Start attempts every subscription independently and returns the failures
// joined. Stop is idempotent, cancels subscribes still in flight and
// suppresses messages that race with teardown.
//
// # Identity
//
// Each doorbell is identified downstream by topic + name + "_event". The
// key is empty, and a warning logged, when either part is empty.
//
// Example:
//
//	b, err := doorbell.Configure(cfg.Doorbells, doorbell.Options{
//	    Broker: broker,
//	    Sink:   sink,
//	    QoS:    1,
//	})
//	if err != nil {
//	    log.Warn("some doorbells rejected", "error", err)
//	}
//	if err := b.Start(ctx); err != nil {
//	    log.Warn("some doorbells not subscribed", "error", err)
//	}
//	defer b.Stop()
package doorbell
