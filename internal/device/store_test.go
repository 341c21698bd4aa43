package device

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newSeedStore() *Store {
	return NewStore(NewRegistry(DefaultSeed()...))
}

func TestStore_ToggleNotifies(t *testing.T) {
	store := newSeedStore()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	var got []Change
	store.Subscribe(func(c Change) { got = append(got, c) })

	dev, ok := store.Toggle("1")
	if !ok {
		t.Fatal("Toggle(1) not applied")
	}
	if !dev.Status {
		t.Error("returned device should be on")
	}
	if len(got) != 1 {
		t.Fatalf("received %d changes, want 1", len(got))
	}
	if got[0].Kind != ChangeToggled || got[0].Device.ID != "1" || !got[0].At.Equal(fixed) {
		t.Errorf("change = %+v", got[0])
	}

	snap, _ := store.Snapshot().Get("1")
	if !snap.Status {
		t.Error("snapshot not updated")
	}
}

func TestStore_UnknownIDDoesNotNotify(t *testing.T) {
	store := newSeedStore()

	calls := 0
	store.Subscribe(func(Change) { calls++ })

	if _, ok := store.Toggle("nope"); ok {
		t.Error("Toggle(nope) reported applied")
	}
	if _, ok := store.Adjust("nope", true); ok {
		t.Error("Adjust(nope) reported applied")
	}
	if calls != 0 {
		t.Errorf("listener called %d times, want 0", calls)
	}
}

func TestStore_AdjustReturnsUpdatedValue(t *testing.T) {
	store := newSeedStore()

	dev, ok := store.Adjust("2", false)
	if !ok {
		t.Fatal("Adjust(2) not applied")
	}
	if dev.Value == nil || *dev.Value != 71 {
		t.Errorf("value = %v, want 71", dev.Value)
	}
}

func TestStore_Add(t *testing.T) {
	tests := []struct {
		name    string
		draft   Draft
		wantErr error
		wantLen int
	}{
		{
			name:    "valid",
			draft:   Draft{Name: " Desk Lamp ", Type: TypeLight, Room: "Office"},
			wantLen: 8,
		},
		{
			name:    "missing room",
			draft:   Draft{Name: "Desk Lamp", Type: TypeLight},
			wantErr: ErrMissingFields,
			wantLen: 7,
		},
		{
			name:    "whitespace only",
			draft:   Draft{Name: "  ", Type: "  ", Room: "  "},
			wantErr: ErrMissingFields,
			wantLen: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newSeedStore()
			notified := 0
			store.Subscribe(func(Change) { notified++ })

			dev, err := store.Add(tt.draft)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Add() error = %v, want %v", err, tt.wantErr)
			}
			if got := store.Snapshot().Len(); got != tt.wantLen {
				t.Errorf("Len() = %d, want %d", got, tt.wantLen)
			}

			if tt.wantErr != nil {
				if notified != 0 {
					t.Error("listener notified on rejected draft")
				}
				return
			}
			if dev.Name != "Desk Lamp" {
				t.Errorf("Name = %q, want trimmed", dev.Name)
			}
			if notified != 1 {
				t.Errorf("notified %d times, want 1", notified)
			}
		})
	}
}

func TestStore_UnsubscribeIsIdempotent(t *testing.T) {
	store := newSeedStore()

	calls := 0
	unsubscribe := store.Subscribe(func(Change) { calls++ })
	other := store.Subscribe(func(Change) {})

	unsubscribe()
	unsubscribe()

	if n := store.ListenerCount(); n != 1 {
		t.Errorf("ListenerCount() = %d, want 1", n)
	}

	store.Toggle("1")
	if calls != 0 {
		t.Errorf("unsubscribed listener called %d times", calls)
	}

	other()
	if n := store.ListenerCount(); n != 0 {
		t.Errorf("ListenerCount() = %d, want 0", n)
	}
}

func TestStore_ListenerPanicDoesNotBreakMutation(t *testing.T) {
	store := newSeedStore()

	store.Subscribe(func(Change) { panic("boom") })
	reached := false
	store.Subscribe(func(Change) { reached = true })

	if _, ok := store.Toggle("1"); !ok {
		t.Fatal("Toggle(1) not applied")
	}
	if !reached {
		t.Error("second listener not reached after panic")
	}
}

func TestStore_ListenerReceivesCopy(t *testing.T) {
	store := newSeedStore()
	store.Subscribe(func(c Change) {
		*c.Device.Value = 0
	})

	store.Adjust("2", true)

	dev, _ := store.Snapshot().Get("2")
	if *dev.Value != 73 {
		t.Errorf("value = %d, want 73", *dev.Value)
	}
}

func TestStore_ConcurrentMutations(t *testing.T) {
	store := newSeedStore()

	var mu sync.Mutex
	var last int
	ordered := true
	store.Subscribe(func(c Change) {
		if c.Kind != ChangeAdjusted {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if *c.Device.Value <= last {
			ordered = false
		}
		last = *c.Device.Value
	})

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Adjust("2", true)
		}()
		go func() {
			defer wg.Done()
			store.Toggle("3")
		}()
	}
	wg.Wait()

	thermostat, _ := store.Snapshot().Get("2")
	if *thermostat.Value != 72+workers {
		t.Errorf("value = %d, want %d", *thermostat.Value, 72+workers)
	}
	lock, _ := store.Snapshot().Get("3")
	if !lock.Status {
		t.Error("front door lock status changed after an even number of toggles")
	}
	if !ordered {
		t.Error("adjust changes delivered out of order")
	}
}
