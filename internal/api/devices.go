package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homey-core/internal/audit"
	"github.com/nerrad567/homey-core/internal/device"
)

// MessageDeviceAdded confirms a successful add.
const MessageDeviceAdded = "Device added successfully!"

type adjustRequest struct {
	Increase bool `json:"increase"`
}

// handleListDevices returns every device in registry order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.devices.Snapshot().Devices()
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.devices.Snapshot().Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice adds a device from the add form.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var draft device.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.devices.Add(draft)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrMissingFields):
			writeValidationError(w, MessageMissingFields)
		case errors.Is(err, device.ErrInvalidName):
			writeValidationError(w, "Device name is too long.")
		case errors.Is(err, device.ErrInvalidRoom):
			writeValidationError(w, "Room name is too long.")
		default:
			writeInternalError(w, "failed to add device")
		}
		return
	}

	s.recordDevice(r, audit.ActionCreate, dev, map[string]any{"name": dev.Name, "type": dev.Type, "room": dev.Room})
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": MessageDeviceAdded,
		"device":  dev,
	})
}

// handleToggleDevice flips a device on or off. Unknown IDs are ignored
// and answer 204.
func (s *Server) handleToggleDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.devices.Toggle(chi.URLParam(r, "id"))
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.recordDevice(r, audit.ActionToggle, dev, map[string]any{"status": dev.Status})
	writeJSON(w, http.StatusOK, dev)
}

// handleAdjustDevice moves a device's value one step. Unknown IDs are
// ignored and answer 204.
func (s *Server) handleAdjustDevice(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, ok := s.devices.Adjust(chi.URLParam(r, "id"), req.Increase)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.recordDevice(r, audit.ActionAdjust, dev, map[string]any{"value": *dev.Value})
	writeJSON(w, http.StatusOK, dev)
}

// handleListRooms returns the devices grouped by room, in first-seen order.
func (s *Server) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.devices.Snapshot().Rooms()})
}

// handleListDeviceTypes returns the type catalog for the add form.
func (s *Server) handleListDeviceTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"types": device.Catalog()})
}

// handleListRoomOptions returns the rooms offered by the add form.
func (s *Server) handleListRoomOptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.roomOptions})
}

func (s *Server) recordDevice(r *http.Request, action string, dev device.Device, details map[string]any) {
	s.recorder.Record(audit.Entry{
		Action:     action,
		EntityType: audit.EntityDevice,
		EntityID:   dev.ID,
		UserID:     userIDFrom(r.Context()),
		Source:     "api",
		Details:    details,
	})
}
