// Package device provides the Device Registry for Homey Core.
//
// The registry is the in-memory, ordered catalogue of the devices shown on the
// dashboard. It is never persisted: a restart starts again from the seed set.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        Device Registry                        │
//	│                                                               │
//	│  ┌──────────────────┐   ┌──────────────────┐   ┌───────────┐  │
//	│  │      Store       │   │     Registry     │   │   Draft   │  │
//	│  │   (store.go)     │──▶│  (registry.go)   │   │ (valid.)  │  │
//	│  │                  │   │                  │   │           │  │
//	│  │ • owns snapshot  │   │ • immutable      │   │ • form    │  │
//	│  │ • serialises     │   │ • Toggle/Adjust  │   │   checks  │  │
//	│  │ • notifies       │   │ • Add            │   │           │  │
//	│  └──────────────────┘   └──────────────────┘   └───────────┘  │
//	│           │                       │                           │
//	└───────────│───────────────────────│───────────────────────────┘
//	            ▼                       ▼
//	   WebSocket / MQTT /         GroupByRoom
//	   InfluxDB / activity        (rooms.go)
//
// # Key Types
//
//   - Device: a record with identifier, name, type, status, value, room, color
//   - Type: tagged variant with a static style table (label, color, icon)
//   - Registry: immutable snapshot; every operation returns a new one
//   - Store: concurrency-safe owner of the current snapshot with change listeners
//
// # Usage
//
//	store := device.NewStore(device.NewRegistry(device.DefaultSeed()...))
//	unsubscribe := store.Subscribe(func(c device.Change) {
//	    log.Info("device changed", "kind", c.Kind, "id", c.Device.ID)
//	})
//	defer unsubscribe()
//
//	store.Toggle("1")
//	store.Adjust("2", true)
//	dev, err := store.Add(device.Draft{Name: "Desk Lamp", Type: device.TypeLight, Room: "Office"})
//
//	for _, room := range store.Snapshot().Rooms() {
//	    fmt.Println(room.Room, len(room.Devices))
//	}
//
// # Unknown identifiers
//
// Toggle and Adjust treat an unknown identifier as a no-op: the registry is
// returned unchanged and no change is published.
package device
