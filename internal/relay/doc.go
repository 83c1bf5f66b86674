// Package relay turns device state published over MQTT into line-protocol
// rows for a time-series server.
//
//	Bridge → MQTT graylogic/state/{protocol}/{address} → Relay → ILP server
//
// Each state message becomes one row in the configured table. The device ID,
// protocol and address are symbols; scalar state values are columns.
//
// Rows that cannot be delivered are parked in a SQLite spool and replayed
// oldest first once the connection is back.
package relay
