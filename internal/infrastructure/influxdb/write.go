package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/homey-core/internal/device"
)

// MeasurementDeviceState is the measurement holding device history.
const MeasurementDeviceState = "device_state"

// WriteDeviceState records a device's status (and value, when set) at the
// given time. The write is batched and never blocks.
func (c *Client) WriteDeviceState(d device.Device, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(devicePoint(d, at))
}

// TrackStore writes a point for every current device and then for every
// store change. The returned function stops tracking.
func (c *Client) TrackStore(store *device.Store) (stop func()) {
	at := c.now()
	for _, d := range store.Snapshot().Devices() {
		c.WriteDeviceState(d, at)
	}
	return store.Subscribe(func(ch device.Change) {
		c.WriteDeviceState(ch.Device, ch.At)
	})
}

func devicePoint(d device.Device, at time.Time) *write.Point {
	var on int64
	if d.Status {
		on = 1
	}
	fields := map[string]any{"on": on}
	if d.Value != nil {
		fields["value"] = int64(*d.Value)
	}

	return write.NewPoint(
		MeasurementDeviceState,
		map[string]string{
			"device_id": d.ID,
			"type":      string(d.Type),
			"room":      d.Room,
		},
		fields,
		at,
	)
}
