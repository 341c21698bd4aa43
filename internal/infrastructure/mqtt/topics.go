package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every Homey topic.
const TopicPrefix = "homey"

// Topics builds Homey MQTT topic names.
//
//	mqtt.Topics{}.DeviceState("2") // "homey/device/2/state"
type Topics struct{}

// DeviceState is where a device's current record is published, retained.
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, deviceID)
}

// DeviceCommand is where other systems ask for a device to be toggled or adjusted.
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/set", TopicPrefix, deviceID)
}

// SystemStatus carries the online/offline status and the LWT.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllDeviceCommands matches every device command topic.
func (Topics) AllDeviceCommands() string {
	return TopicPrefix + "/device/+/set"
}

// DeviceIDFromTopic extracts the device ID from a homey/device/{id}/... topic.
func DeviceIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "device" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
