// Package metrics exposes the bridge's Prometheus collectors.
//
// All collectors live in a private registry served by Handler, so tests can
// create as many instances as they like without colliding on the default
// registry.
package metrics
