package device

// Device is a single controllable entity shown on the dashboard.
//
// Value is only meaningful for types with a continuous setting (see
// Type.Adjustable). It is nil until first set.
type Device struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   Type   `json:"type"`
	Status bool   `json:"status"`
	Value  *int   `json:"value,omitempty"`
	Room   string `json:"room"`
	Color  string `json:"color"`
}

// Clone returns an independent copy of the device.
// The Value pointer is re-allocated so the copy can be modified freely.
func (d Device) Clone() Device {
	cpy := d
	if d.Value != nil {
		v := *d.Value
		cpy.Value = &v
	}
	return cpy
}

// Type is the tagged variant identifying a device's kind.
//
// Unrecognised values are kept as-is on the record and render with the
// fallback style.
type Type string

// Known device types.
const (
	TypeLight      Type = "light"
	TypeThermostat Type = "thermostat"
	TypeLock       Type = "lock"
	TypeCamera     Type = "camera"
	TypeTV         Type = "tv"
	TypeFan        Type = "fan"
	TypeSpeaker    Type = "speaker"
)

// FallbackColor is the color tag given to devices of an unrecognised type.
const FallbackColor = "gray"

// Style is the rendering metadata attached to a device type.
type Style struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// TypeInfo pairs a type with its style, in catalog order.
type TypeInfo struct {
	Type Type `json:"type"`
	Style
	Adjustable bool `json:"adjustable"`
}

// catalog is the static variant → style table, in display order.
var catalog = []TypeInfo{
	{Type: TypeLight, Style: Style{Label: "Light", Color: "amber", Icon: "lightbulb"}},
	{Type: TypeThermostat, Style: Style{Label: "Thermostat", Color: "emerald", Icon: "thermometer"}, Adjustable: true},
	{Type: TypeLock, Style: Style{Label: "Lock", Color: "purple", Icon: "lock"}},
	{Type: TypeCamera, Style: Style{Label: "Camera", Color: "rose", Icon: "video"}},
	{Type: TypeTV, Style: Style{Label: "TV", Color: "cyan", Icon: "power"}},
	{Type: TypeFan, Style: Style{Label: "Fan", Color: "indigo", Icon: "fan"}},
	{Type: TypeSpeaker, Style: Style{Label: "Speaker", Color: "fuchsia", Icon: "speaker"}},
}

var fallbackStyle = Style{Label: "Device", Color: FallbackColor, Icon: "settings"}

// byType indexes catalog for O(1) lookups.
var byType map[Type]TypeInfo

func init() {
	byType = make(map[Type]TypeInfo, len(catalog))
	for _, info := range catalog {
		byType[info.Type] = info
	}
}

// Catalog returns the known device types in display order.
func Catalog() []TypeInfo {
	out := make([]TypeInfo, len(catalog))
	copy(out, catalog)
	return out
}

// Known reports whether t is one of the catalogued types.
func (t Type) Known() bool {
	_, ok := byType[t]
	return ok
}

// Style returns the rendering metadata for t, or the fallback style.
func (t Type) Style() Style {
	if info, ok := byType[t]; ok {
		return info.Style
	}
	return fallbackStyle
}

// Color returns the color tag for t.
func (t Type) Color() string {
	return t.Style().Color
}

// Adjustable reports whether devices of this type expose value controls.
func (t Type) Adjustable() bool {
	return byType[t].Adjustable
}
