package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-ilp/internal/infrastructure/mqtt"
)

// StateMessage is published by a protocol bridge when device state changes.
// Topic: graylogic/state/{protocol}/{address}
type StateMessage struct {
	// DeviceID is the Gray Logic device identifier.
	DeviceID string `json:"device_id"`

	// Timestamp is when the state was observed. Zero means "now".
	Timestamp time.Time `json:"timestamp"`

	// State contains the current device state, e.g.
	//   Light: {"on": true, "level": 50}
	//   Sensor: {"temperature": 21.5, "humidity": 45.0}
	State map[string]any `json:"state"`

	// Protocol is the protocol identifier ("knx").
	Protocol string `json:"protocol"`

	// Address is the protocol-specific address (e.g., "1/2/3").
	Address string `json:"address"`
}

// ParseStateMessage decodes a state payload received on topic.
//
// Numbers are kept as json.Number so integers and floats can be told apart.
// Protocol and address fall back to the topic when the payload omits them.
func ParseStateMessage(topic string, payload []byte) (*StateMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var msg StateMessage
	if err := dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	if msg.Protocol == "" || msg.Address == "" {
		if protocol, address, ok := (mqtt.Topics{}).ParseDeviceState(topic); ok {
			if msg.Protocol == "" {
				msg.Protocol = protocol
			}
			if msg.Address == "" {
				msg.Address = address
			}
		}
	}

	if len(msg.State) == 0 {
		return nil, fmt.Errorf("%w: empty state", ErrInvalidMessage)
	}
	return &msg, nil
}

// Point converts the message into a point for table.
//
// Device ID, protocol and address become tags; scalar state values become
// fields. Values that have no column type (objects, arrays, null) are
// returned in skipped rather than failing the whole message.
func (m *StateMessage) Point(table string) (p *write.Point, skipped []string, err error) {
	tags := make(map[string]string, 3)
	for k, v := range map[string]string{
		"device_id": m.DeviceID,
		"protocol":  m.Protocol,
		"address":   m.Address,
	} {
		if v != "" {
			tags[k] = v
		}
	}

	fields := make(map[string]any, len(m.State))
	for k, v := range m.State {
		fv, ok := fieldValue(v)
		if !ok {
			skipped = append(skipped, k)
			continue
		}
		fields[k] = fv
	}
	if len(fields) == 0 {
		return nil, skipped, fmt.Errorf("%w: device %q", ErrNoFields, m.DeviceID)
	}

	return write.NewPoint(table, tags, fields, m.Timestamp), skipped, nil
}

// fieldValue maps a decoded JSON value to a column type.
func fieldValue(v any) (any, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		return x, true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		if f, err := x.Float64(); err == nil {
			return f, true
		}
		return nil, false
	case float64:
		return x, true
	default:
		return nil, false
	}
}
