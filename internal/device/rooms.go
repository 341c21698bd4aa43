package device

// RoomGroup is one room of the dashboard with the devices placed in it.
type RoomGroup struct {
	Room    string   `json:"room"`
	Devices []Device `json:"devices"`
}

// GroupByRoom partitions devices by their room label.
//
// Rooms appear in first-seen order and each group keeps the original device
// order. Every device lands in exactly one group. The result is recomputed on
// each call.
func GroupByRoom(devices []Device) []RoomGroup {
	index := make(map[string]int)
	groups := make([]RoomGroup, 0)

	for i := range devices {
		room := devices[i].Room
		gi, ok := index[room]
		if !ok {
			gi = len(groups)
			index[room] = gi
			groups = append(groups, RoomGroup{Room: room})
		}
		groups[gi].Devices = append(groups[gi].Devices, devices[i].Clone())
	}

	return groups
}

// RoomNames returns the distinct room labels in first-seen order.
func RoomNames(devices []Device) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for i := range devices {
		if _, ok := seen[devices[i].Room]; ok {
			continue
		}
		seen[devices[i].Room] = struct{}{}
		names = append(names, devices[i].Room)
	}
	return names
}
