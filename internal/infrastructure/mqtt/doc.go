// Package mqtt connects Homey Core to an MQTT broker.
//
// The Client wraps paho with a retained online/offline status on
// homey/system/status (also the Last Will), subscriptions that survive
// reconnects, and panic-safe handlers.
//
// DeviceBridge mirrors the device store onto the bus: every device is
// published retained to homey/device/{id}/state, and commands arriving on
// homey/device/{id}/set are applied to the store.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	bridge := mqtt.NewDeviceBridge(client, store, byte(cfg.MQTT.QoS), logger)
//	if err := bridge.Start(); err != nil {
//	    return err
//	}
//	defer bridge.Stop()
package mqtt
