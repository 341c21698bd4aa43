// Package influxdb keeps the history of device state in InfluxDB v2.
//
// Every device change becomes one point of the device_state measurement,
// tagged with device_id, type and room, with an integer "on" field (0/1)
// and the integer "value" field for devices that have one.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	stop := client.TrackStore(store)
//	defer stop()
//
// Writes are batched per batch_size and flush_interval and never block the
// caller; failures arrive through SetOnError.
package influxdb
