// Package mqtt provides MQTT client connectivity for the doorbell bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Handle-based subscriptions, several handlers per filter
//   - Topic-filter validation against the MQTT grammar
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//
// # Delivery model
//
// The paho client is configured with OrderMatters(false): every message is
// handled in its own goroutine and handlers may publish without deadlocking
// the router. Handlers on the same filter can therefore run concurrently;
// callers that need per-source ordering serialise on their side.
//
// # Security Considerations
//
//   - TLS should be enabled for brokers outside the host (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - A SUBACK refusal is reported as ErrSubscribeRejected
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sub, err := client.Subscribe(ctx, "home/front/doorbell", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//	...
//	client.Unsubscribe(sub)
package mqtt
