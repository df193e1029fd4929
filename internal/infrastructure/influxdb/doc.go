// Package influxdb records doorbell rings in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes and health monitoring. Each ring
// becomes one point in the "doorbell_events" measurement, tagged with the
// doorbell name, topic and unique ID, with the field rings=1.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influx write", "error", err) })
//	_ = client.WriteRing(influxdb.Ring{Doorbell: "Front Door", Topic: "home/front/doorbell"})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package influxdb
