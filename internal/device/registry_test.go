package device

import (
	"fmt"
	"testing"
)

func seedRegistry() Registry {
	return NewRegistry(DefaultSeed()...)
}

func intPtr(v int) *int {
	return &v
}

func TestRegistry_ToggleTwiceRestoresStatus(t *testing.T) {
	r := seedRegistry()

	for _, original := range r.Devices() {
		once := r.Toggle(original.ID)
		got, _ := once.Get(original.ID)
		if got.Status == original.Status {
			t.Errorf("Toggle(%q) status = %v, want %v", original.ID, got.Status, !original.Status)
		}

		twice := once.Toggle(original.ID)
		got, _ = twice.Get(original.ID)
		if got.Status != original.Status {
			t.Errorf("Toggle twice (%q) status = %v, want %v", original.ID, got.Status, original.Status)
		}
	}
}

func TestRegistry_ToggleLeavesOthersUnchanged(t *testing.T) {
	r := seedRegistry()

	next := r.Toggle("1")

	lights, _ := next.Get("1")
	if !lights.Status {
		t.Error("Living Room Lights should be on after toggle")
	}

	thermostat, _ := next.Get("2")
	if !thermostat.Status {
		t.Error("Smart Thermostat status changed, want on")
	}
	if thermostat.Value == nil || *thermostat.Value != 72 {
		t.Errorf("Smart Thermostat value = %v, want 72", thermostat.Value)
	}
}

func TestRegistry_ToggleDoesNotMutateReceiver(t *testing.T) {
	r := seedRegistry()
	_ = r.Toggle("1")

	lights, _ := r.Get("1")
	if lights.Status {
		t.Error("original registry was mutated by Toggle")
	}
}

func TestRegistry_UnknownIDIsNoOp(t *testing.T) {
	r := seedRegistry()

	tests := []struct {
		name string
		op   func(Registry) Registry
	}{
		{"toggle", func(r Registry) Registry { return r.Toggle("missing") }},
		{"adjust up", func(r Registry) Registry { return r.Adjust("missing", true) }},
		{"adjust down", func(r Registry) Registry { return r.Adjust("missing", false) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := tt.op(r)
			if next.Len() != r.Len() {
				t.Fatalf("Len() = %d, want %d", next.Len(), r.Len())
			}
			before, after := r.Devices(), next.Devices()
			for i := range before {
				if before[i].Status != after[i].Status || !sameValue(before[i].Value, after[i].Value) {
					t.Errorf("device %q changed on unknown id", before[i].ID)
				}
			}
		})
	}
}

func TestRegistry_AdjustThermostat(t *testing.T) {
	r := seedRegistry()

	for i := 0; i < 3; i++ {
		r = r.Adjust("2", true)
	}

	thermostat, _ := r.Get("2")
	if thermostat.Value == nil || *thermostat.Value != 75 {
		t.Errorf("value after three increments = %v, want 75", thermostat.Value)
	}
}

func TestRegistry_AdjustUpThenDownRestoresValue(t *testing.T) {
	tests := []struct {
		name  string
		steps int
	}{
		{"one step", 1},
		{"five steps", 5},
		{"twelve steps", 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := seedRegistry()
			for i := 0; i < tt.steps; i++ {
				r = r.Adjust("2", true)
			}
			for i := 0; i < tt.steps; i++ {
				r = r.Adjust("2", false)
			}
			got, _ := r.Get("2")
			if got.Value == nil || *got.Value != 72 {
				t.Errorf("value = %v, want 72", got.Value)
			}
		})
	}
}

func TestRegistry_AdjustUnsetValue(t *testing.T) {
	r := seedRegistry()

	up := r.Adjust("1", true)
	lights, _ := up.Get("1")
	if lights.Value == nil || *lights.Value != 1 {
		t.Errorf("unset value adjusted up = %v, want 1", lights.Value)
	}

	down := r.Adjust("1", false)
	lights, _ = down.Get("1")
	if lights.Value == nil || *lights.Value != -1 {
		t.Errorf("unset value adjusted down = %v, want -1", lights.Value)
	}
}

func TestRegistry_Add(t *testing.T) {
	r := seedRegistry()

	next, dev := r.Add(Draft{Name: "Desk Lamp", Type: TypeLight, Room: "Office"})

	if next.Len() != r.Len()+1 {
		t.Fatalf("Len() = %d, want %d", next.Len(), r.Len()+1)
	}
	if dev.Status {
		t.Error("new device should be off")
	}
	if dev.Value != nil {
		t.Errorf("new device value = %v, want nil", *dev.Value)
	}
	if dev.Color != "amber" {
		t.Errorf("Color = %q, want amber", dev.Color)
	}
	for _, existing := range r.Devices() {
		if existing.ID == dev.ID {
			t.Fatalf("new id %q collides with existing device", dev.ID)
		}
	}

	devices := next.Devices()
	if last := devices[len(devices)-1]; last.ID != dev.ID {
		t.Errorf("new device not appended last: got %q", last.ID)
	}
}

func TestRegistry_AddUnknownTypeUsesFallbackColor(t *testing.T) {
	_, dev := Registry{}.Add(Draft{Name: "Robot", Type: "vacuum", Room: "Kitchen"})
	if dev.Color != FallbackColor {
		t.Errorf("Color = %q, want %q", dev.Color, FallbackColor)
	}
}

func TestRegistry_AddRegeneratesCollidingID(t *testing.T) {
	ids := []string{"1", "2", "fresh"}
	orig := generateID
	generateID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	t.Cleanup(func() { generateID = orig })

	_, dev := seedRegistry().Add(Draft{Name: "Lamp", Type: TypeLight, Room: "Office"})
	if dev.ID != "fresh" {
		t.Errorf("ID = %q, want fresh", dev.ID)
	}
}

func TestRegistry_AddManyUniqueIDs(t *testing.T) {
	r := seedRegistry()
	for i := 0; i < 50; i++ {
		r, _ = r.Add(Draft{Name: fmt.Sprintf("Lamp %d", i), Type: TypeLight, Room: "Office"})
	}

	seen := make(map[string]bool)
	for _, d := range r.Devices() {
		if seen[d.ID] {
			t.Fatalf("duplicate id %q", d.ID)
		}
		seen[d.ID] = true
	}
}

func TestRegistry_DevicesReturnsCopies(t *testing.T) {
	r := NewRegistry(Device{ID: "t", Name: "Thermo", Type: TypeThermostat, Value: intPtr(20), Room: "Hall"})

	devices := r.Devices()
	*devices[0].Value = 99
	devices[0].Name = "changed"

	got, _ := r.Get("t")
	if *got.Value != 20 || got.Name != "Thermo" {
		t.Errorf("registry mutated through Devices(): %+v", got)
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	if _, ok := seedRegistry().Get("missing"); ok {
		t.Error("Get(missing) reported found")
	}
}

func sameValue(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
