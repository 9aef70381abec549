// Package integration runs the relay end to end on the loopback interface:
// real UDP trigger socket, gRPC health endpoint and prometheus scrape.
package integration
