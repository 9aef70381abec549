// Package hardware drives the two physical outputs of the device: the status
// indicator and the beacon relay.
//
// Pins are opened through periph.io; LogOutput replaces them on hosts
// without GPIO.
package hardware
