// Package listener owns the UDP socket watched for triggers.
//
// Payloads are never read for meaning: Wait only reports readiness and
// Drain throws away whatever is queued, so that the next Wait reflects new
// arrivals only.
package listener
