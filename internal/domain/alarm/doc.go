// Package alarm contains the domain types of the beacon alarm.
//
// It defines the State of the trigger/queue/cooldown machine, the Session
// describing one episode and the default timing constants.
package alarm
