package handlers

import (
	"errors"
	"net/http"

	"github.com/gluk-w/termbridge/internal/inventory"
	"github.com/go-chi/chi/v5"
)

// Devices is set from main.go. Terminal sessions resolve device ids through
// it.
var Devices *inventory.Store

func ListDevices(w http.ResponseWriter, r *http.Request) {
	if Devices == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"devices": []inventory.View{}})
		return
	}
	views, err := Devices.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": views})
}

func GetDevice(w http.ResponseWriter, r *http.Request) {
	if Devices == nil {
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}
	view, err := Devices.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, inventory.ErrDeviceNotFound) {
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load device")
		return
	}
	writeJSON(w, http.StatusOK, view)
}
