package device

// Registry is an immutable, ordered snapshot of device records.
//
// Every mutation returns a new Registry and leaves the receiver untouched,
// so a snapshot can be handed to readers without locking. The zero value is
// an empty registry.
type Registry struct {
	devices []Device
}

// NewRegistry creates a registry holding copies of the given devices, in order.
func NewRegistry(devices ...Device) Registry {
	cpy := make([]Device, len(devices))
	for i := range devices {
		cpy[i] = devices[i].Clone()
	}
	return Registry{devices: cpy}
}

// Len returns the number of devices.
func (r Registry) Len() int {
	return len(r.devices)
}

// Devices returns copies of all devices in registry order.
func (r Registry) Devices() []Device {
	out := make([]Device, len(r.devices))
	for i := range r.devices {
		out[i] = r.devices[i].Clone()
	}
	return out
}

// Get returns a copy of the device with the given identifier.
func (r Registry) Get(id string) (Device, bool) {
	i := r.indexOf(id)
	if i < 0 {
		return Device{}, false
	}
	return r.devices[i].Clone(), true
}

// Toggle returns a registry where the device with the given identifier has
// its status inverted. An unknown identifier returns r unchanged.
func (r Registry) Toggle(id string) Registry {
	next, _ := r.toggle(id)
	return next
}

// Adjust returns a registry where the device's value is moved by one, up when
// increase is true and down otherwise. A nil value counts as 0. An unknown
// identifier returns r unchanged.
func (r Registry) Adjust(id string, increase bool) Registry {
	next, _ := r.adjust(id, increase)
	return next
}

// Add returns a registry with a new device appended, along with that device.
//
// The device gets a fresh identifier distinct from every existing one, an off
// status, no value, and the color of its type. The draft is not validated
// here; callers run Draft.Validate at the form boundary first.
func (r Registry) Add(d Draft) (Registry, Device) {
	id := generateID()
	for r.indexOf(id) >= 0 {
		id = generateID()
	}

	dev := Device{
		ID:     id,
		Name:   d.Name,
		Type:   d.Type,
		Status: false,
		Room:   d.Room,
		Color:  d.Type.Color(),
	}

	devices := make([]Device, len(r.devices), len(r.devices)+1)
	copy(devices, r.devices)
	devices = append(devices, dev)

	return Registry{devices: devices}, dev.Clone()
}

// Rooms groups the registry by room label. See GroupByRoom.
func (r Registry) Rooms() []RoomGroup {
	return GroupByRoom(r.devices)
}

// toggle is Toggle that also reports the updated device.
func (r Registry) toggle(id string) (Registry, *Device) {
	return r.update(id, func(d *Device) {
		d.Status = !d.Status
	})
}

// adjust is Adjust that also reports the updated device.
func (r Registry) adjust(id string, increase bool) (Registry, *Device) {
	delta := -1
	if increase {
		delta = 1
	}
	return r.update(id, func(d *Device) {
		v := 0
		if d.Value != nil {
			v = *d.Value
		}
		v += delta
		d.Value = &v
	})
}

// update copies the device list, applies fn to the matching record and
// returns the new registry plus a copy of the updated record. On a miss the
// receiver is returned with a nil device.
func (r Registry) update(id string, fn func(*Device)) (Registry, *Device) {
	i := r.indexOf(id)
	if i < 0 {
		return r, nil
	}

	devices := make([]Device, len(r.devices))
	copy(devices, r.devices)

	updated := devices[i].Clone()
	fn(&updated)
	devices[i] = updated

	out := updated.Clone()
	return Registry{devices: devices}, &out
}

func (r Registry) indexOf(id string) int {
	for i := range r.devices {
		if r.devices[i].ID == id {
			return i
		}
	}
	return -1
}
