// Package relay is the main loop of the beacon.
//
// It connects through the link supervisor, binds the trigger socket to the
// acquired address and feeds arrivals to a fresh alarm controller. The loop
// checks the link before every poll; on loss the socket is closed and the
// supervisor takes over again. Run wires configuration, hardware, radio and
// the optional metrics, health and MQTT side endpoints around it.
package relay
