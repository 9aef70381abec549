// Package notify publishes alarm and link state changes to an MQTT broker.
package notify
