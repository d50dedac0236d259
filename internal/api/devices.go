package api

import (
	"encoding/json"
	"net/http"

	"github.com/pingwatch/pingwatch/internal/pingerr"
)

type registerDeviceRequest struct {
	DeviceID *string `json:"device_id,omitempty"`
	Label    *string `json:"label,omitempty"`
}

// handleRegisterDevice implements POST /devices/register. Idempotent on
// device_id; claims an unowned device for the caller, refuses
// (NotFound) a device owned by someone else.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pingerr.BadRequest("invalid JSON body"))
		return
	}

	device, err := s.stores.Devices.RegisterDevice(r.Context(), req.DeviceID, req.Label, userIDPtr(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDeviceDTO(device))
}
