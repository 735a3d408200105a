// Package mqtt provides the bridge's MQTT broker connection.
//
// This package manages:
//   - Connection to the broker with auto-reconnect and restored subscriptions
//   - Retained bridge status with a Last Will for unexpected disconnects
//   - Publishing with payload and QoS validation
//   - The topic layout shared by Home Assistant discovery and the bridge
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllEntityCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        node, object, ok := topics.ParseEntityCommand(topic)
//	        ...
//	    })
//
// TLS should be enabled (mqtt.broker.tls) whenever the broker is not on the
// same host.
package mqtt
