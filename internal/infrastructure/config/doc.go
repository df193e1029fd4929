// Package config handles loading and validating the doorbell bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with DOORBELL_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// The doorbells list is the bridge's only domain configuration:
//
//	doorbells:
//	  - topic: "home/front/doorbell"
//	    name: "Front Door"
//	  - topic: "home/back/doorbell"   # name defaults to "MQTT Doorbell Event"
//
// Security Considerations:
//   - Broker, InfluxDB and Redis credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(len(cfg.Doorbells))
package config
