// Package mqtt provides the relay's MQTT connection.
//
// The relay is a consumer: it subscribes to the device state topics that
// protocol bridges publish and turns each message into a line-protocol row.
//
//	Protocol Bridges → MQTT Broker → ilprelay → ILP server
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Subscriptions, restored after every reconnect
//   - A retained online/offline status topic with Last Will
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceStates(), 1, relay.HandleMessage)
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) outside a trusted network
//   - Credentials come from config or ILPRELAY_MQTT_* environment variables
package mqtt
