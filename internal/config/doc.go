// Package config defines the relay settings and provides helpers to load,
// validate and save them in YAML format.
//
// The Config type holds the known networks, the trigger port, alarm timing,
// radio and hardware drivers and the optional side endpoints (metrics,
// health, MQTT).
package config
