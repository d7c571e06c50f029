package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/velagate/velagate-core/internal/device"
	"github.com/velagate/velagate-core/internal/driver"
	"github.com/velagate/velagate-core/internal/transport"
)

// handleListDevices returns all registered devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice registers a new device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var dev device.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.registry.Create(r.Context(), &dev); err != nil {
		switch {
		case errors.Is(err, device.ErrExists):
			writeConflict(w, "device already exists")
		case errors.Is(err, device.ErrInvalidBrand),
			errors.Is(err, device.ErrInvalidType),
			errors.Is(err, device.ErrInvalidAddress):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to create device")
		}
		return
	}

	writeJSON(w, http.StatusCreated, dev)
}

// handleUpdateDevice replaces a device's configuration.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var dev device.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	dev.ID = id

	if err := s.registry.Update(r.Context(), &dev); err != nil {
		switch {
		case errors.Is(err, device.ErrNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, device.ErrInvalidBrand),
			errors.Is(err, device.ErrInvalidType),
			errors.Is(err, device.ErrInvalidAddress):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to update device")
		}
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device from the registry.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.Delete(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to delete device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceStatus polls the device for a live health snapshot.
func (s *Server) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	dev, drv, ok := s.deviceAndDriver(w, r)
	if !ok {
		return
	}

	status, err := drv.GetStatus(r.Context(), dev)
	if err != nil {
		// An unreachable device is a valid answer, not a server fault.
		writeJSON(w, http.StatusOK, map[string]any{
			"device_id": dev.ID,
			"online":    false,
			"error":     err.Error(),
		})
		return
	}

	if status.Online {
		//nolint:errcheck // Liveness bookkeeping is best-effort
		s.registry.MarkOnline(r.Context(), dev.ID, device.LivenessPull)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":  dev.ID,
		"online":     status.Online,
		"door_state": status.DoorState,
	})
}

// handleSyncDevice runs one credential sync cycle against the device
// and returns the per-item report.
func (s *Server) handleSyncDevice(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		writeUnavailable(w, "sync engine not configured")
		return
	}

	id := chi.URLParam(r, "id")
	dev, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	report, err := s.sync.SyncDevice(r.Context(), dev)
	if err != nil {
		s.logger.Warn("device sync failed", "device_id", dev.ID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"device_id": dev.ID,
			"error":     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleSyncAll runs a sync cycle across every enabled device.
// Per-device failures are carried inside the reports; the run as a
// whole only fails on cancellation.
func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		writeUnavailable(w, "sync engine not configured")
		return
	}

	reports, err := s.sync.SyncAll(r.Context())
	if err != nil {
		writeInternalError(w, "sync run aborted: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reports": reports, "count": len(reports)})
}

// relayRequest optionally overrides the device's configured relay channel.
type relayRequest struct {
	Channel int `json:"channel"`
}

// handleTriggerRelay fires the device's door relay. The operation is
// best-effort: a 200 means the device accepted the command, not that
// the door physically moved.
func (s *Server) handleTriggerRelay(w http.ResponseWriter, r *http.Request) {
	dev, drv, ok := s.deviceAndDriver(w, r)
	if !ok {
		return
	}

	channel := dev.RelayChannel
	if r.ContentLength > 0 {
		var req relayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		if req.Channel > 0 {
			channel = req.Channel
		}
	}

	if err := drv.TriggerRelay(r.Context(), dev, channel); err != nil {
		switch {
		case errors.Is(err, driver.ErrNotSupported):
			writeBadRequest(w, "device does not support relay control")
		case errors.Is(err, transport.ErrAuth):
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"device_id": dev.ID,
				"error":     "device rejected credentials",
			})
		default:
			s.logger.Warn("relay trigger failed", "device_id", dev.ID, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"device_id": dev.ID,
				"error":     err.Error(),
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": dev.ID,
		"channel":   channel,
		"triggered": true,
	})
}

// deviceAndDriver resolves the {id} route parameter to a device and
// its brand driver, writing the error response itself on failure.
func (s *Server) deviceAndDriver(w http.ResponseWriter, r *http.Request) (*device.Device, driver.Driver, bool) {
	if s.drivers == nil {
		writeUnavailable(w, "device drivers not configured")
		return nil, nil, false
	}

	id := chi.URLParam(r, "id")
	dev, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return nil, nil, false
		}
		writeInternalError(w, "failed to get device")
		return nil, nil, false
	}

	drv, err := s.drivers.ForDevice(dev)
	if err != nil {
		writeBadRequest(w, "no driver for brand "+string(dev.Brand))
		return nil, nil, false
	}

	return dev, drv, true
}
