// Package health exposes the relay's link status through the standard
// grpc.health.v1 service, so that fleet tooling can probe a beacon without
// a custom protocol.
package health
