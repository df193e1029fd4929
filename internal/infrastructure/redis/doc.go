// Package redis fans doorbell ring events out through Redis.
//
// Every ring is published as JSON on a pub/sub channel (default
// "doorbell:events") and written to "doorbell:last_ring:<identity>" with a
// TTL, so consumers that were not listening can still read the latest press.
package redis
