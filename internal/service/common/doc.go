// Package common holds helpers shared by several services.
//
// It provides a lightweight gRPC health client wrapper with timeouts and the
// hostname-based identity a beacon presents to its MQTT broker.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
