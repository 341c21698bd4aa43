package device

// DefaultSeed returns the fixed set of devices a fresh dashboard starts with.
func DefaultSeed() []Device {
	thermostat := 72
	return []Device{
		{ID: "1", Name: "Living Room Lights", Type: TypeLight, Status: false, Room: "Living Room", Color: "amber"},
		{ID: "2", Name: "Smart Thermostat", Type: TypeThermostat, Status: true, Value: &thermostat, Room: "Whole House", Color: "emerald"},
		{ID: "3", Name: "Front Door Lock", Type: TypeLock, Status: true, Room: "Entrance", Color: "purple"},
		{ID: "4", Name: "Security Camera", Type: TypeCamera, Status: true, Room: "Entrance", Color: "rose"},
		{ID: "5", Name: "Smart TV", Type: TypeTV, Status: false, Room: "Living Room", Color: "cyan"},
		{ID: "6", Name: "Ceiling Fan", Type: TypeFan, Status: false, Room: "Bedroom", Color: "indigo"},
		{ID: "7", Name: "Smart Speaker", Type: TypeSpeaker, Status: true, Room: "Living Room", Color: "fuchsia"},
	}
}
