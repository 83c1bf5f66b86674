package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes. Bridges publish on the flat scheme
// graylogic/{category}/{protocol}/{address}.
const (
	// TopicPrefixBridge is the base for all bridge topics.
	TopicPrefixBridge = "graylogic"

	// TopicPrefixRelay is the base for the relay's own topics.
	TopicPrefixRelay = "graylogic/ilprelay"
)

// Topics provides builders for the MQTT topics the relay uses.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("knx", "1/2/3")
//	// Returns: "graylogic/state/knx/1/2/3"
type Topics struct{}

// DeviceState returns the topic a bridge publishes device state on.
//
// Example: graylogic/state/knx/light-living-main
func (Topics) DeviceState(protocol, address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, address)
}

// AllDeviceStates returns a pattern matching all bridge state updates.
//
// Pattern: graylogic/state/+/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+/+", TopicPrefixBridge)
}

// RelayStatus returns the retained online/offline topic for one relay instance.
//
// Example: graylogic/ilprelay/ilprelay-01/status
func (Topics) RelayStatus(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixRelay, clientID)
}

// ParseDeviceState splits a state topic into protocol and address.
// The address may itself contain slashes (KNX group addresses do).
//
// Returns ok=false if topic is not a state topic.
func (Topics) ParseDeviceState(topic string) (protocol, address string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixBridge+"/state/")
	if !found {
		return "", "", false
	}
	protocol, address, found = strings.Cut(rest, "/")
	if !found || protocol == "" || address == "" {
		return "", "", false
	}
	return protocol, address, true
}
