package web

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mbocsi/athub/server"
	"github.com/mbocsi/athub/services"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 64 << 10

func (w *WebClient) HandleHome(wr http.ResponseWriter, r *http.Request) {
	http.Redirect(wr, r, "/devices", http.StatusMovedPermanently)
}

func (w *WebClient) HandleDevices(wr http.ResponseWriter, r *http.Request) {
	devices, err := w.services.Device.ListDevices()
	if err != nil {
		w.handleError(wr, err)
		return
	}

	w.templates.pages["devices"].RenderPage(wr, map[string]interface{}{
		"Devices": devices,
	})
}

func (w *WebClient) HandleDeviceDetail(wr http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	device, err := w.services.Device.GetDevice(id)
	if err != nil {
		w.handleError(wr, err)
		return
	}

	if _, ok := r.Header["Hx-Request"]; ok {
		w.templates.pages["devices"].Render(wr, "content", map[string]interface{}{
			"Device": device,
		})
		return
	}

	devices, err := w.services.Device.ListDevices()
	if err != nil {
		w.handleError(wr, err)
		return
	}
	w.templates.pages["devices"].RenderPage(wr, map[string]interface{}{
		"Device":  device,
		"Devices": devices,
	})
}

func (w *WebClient) HandleTransports(wr http.ResponseWriter, r *http.Request) {
	transports, err := w.services.Transport.ListTransports()
	if err != nil {
		w.handleError(wr, err)
		return
	}
	stats, err := w.services.Transport.GetTransportStats()
	if err != nil {
		w.handleError(wr, err)
		return
	}

	w.templates.pages["transports"].RenderPage(wr, map[string]interface{}{
		"Transports": transports,
		"Stats":      stats,
	})
}

func (w *WebClient) HandleListDevices(wr http.ResponseWriter, r *http.Request) {
	devices, err := w.services.Device.ListDevices()
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, devices)
}

func (w *WebClient) HandleGetDevice(wr http.ResponseWriter, r *http.Request) {
	device, err := w.services.Device.GetDevice(chi.URLParam(r, "id"))
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, device)
}

func (w *WebClient) HandleForgetDevice(wr http.ResponseWriter, r *http.Request) {
	if err := w.services.Device.ForgetDevice(chi.URLParam(r, "id")); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusNoContent)
}

func (w *WebClient) HandleGetReadings(wr http.ResponseWriter, r *http.Request) {
	readings, err := w.services.Device.GetReadings(chi.URLParam(r, "id"))
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, readings)
}

// HandleDeviceRename handles device renaming from web forms or JSON
func (w *WebClient) HandleDeviceRename(wr http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var newName string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(r, &req); err != nil {
			w.handleError(wr, err)
			return
		}
		newName = req.Name
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(wr, "Invalid form data", http.StatusBadRequest)
			return
		}
		newName = r.FormValue("name")
	}

	if err := w.RenameDevice(deviceID, newName); err != nil {
		w.handleError(wr, err)
		return
	}

	// Return just the new name for HTMX to update the device name span
	wr.Header().Set("Content-Type", "text/plain")
	wr.Header().Set("HX-Trigger", "clearRenameForm")
	fmt.Fprint(wr, strings.TrimSpace(newName))
}

// HandleSetOutputs sends actuator commands to a device in one message
func (w *WebClient) HandleSetOutputs(wr http.ResponseWriter, r *http.Request) {
	var req struct {
		Outputs []services.Output `json:"outputs"`
	}
	if err := decodeJSON(r, &req); err != nil {
		w.handleError(wr, err)
		return
	}

	if err := w.services.Output.Apply(chi.URLParam(r, "id"), req.Outputs); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusAccepted)
}

// HandlePollDevice asks a passive device for a report and waits for it. The
// optional timeout query parameter is a Go duration such as "2s".
func (w *WebClient) HandlePollDevice(wr http.ResponseWriter, r *http.Request) {
	var timeout time.Duration
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			w.handleError(wr, services.ServiceError{
				Code:    services.ErrCodeInvalidInput,
				Message: "Invalid timeout: " + raw,
				Cause:   err,
			})
			return
		}
		timeout = d
	}

	result, err := w.services.Poll.Poll(r.Context(), chi.URLParam(r, "id"), timeout)
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, result)
}

// HandleDeviceEvents streams Server-Sent Events for one device, or for every
// device when no id is given
func (w *WebClient) HandleDeviceEvents(wr http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "id")
	if topic == "" {
		topic = server.AllDevices
	}

	flusher, ok := wr.(http.Flusher)
	if !ok {
		slog.Error("Streaming unsupported", "topic", topic)
		http.Error(wr, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	client := NewSSEClient(r.RemoteAddr)
	if err := w.services.Event.Subscribe(topic, client); err != nil {
		w.handleError(wr, err)
		return
	}
	defer func() {
		if err := w.services.Event.Unsubscribe(topic, client); err != nil {
			slog.Warn("Failed to unsubscribe event stream", "client", client.Id, "error", err)
		}
	}()

	wr.Header().Set("Content-Type", "text/event-stream")
	wr.Header().Set("Cache-Control", "no-cache")
	wr.Header().Set("Connection", "keep-alive")
	wr.WriteHeader(http.StatusOK)
	fmt.Fprintf(wr, "event: connected\ndata: %s\n\n", topic)
	flusher.Flush()

	slog.Info("Event stream opened", "client", client.Id, "topic", topic, "remote", r.RemoteAddr)
	client.stream(wr, flusher, r.Context().Done(), w.closing)
	slog.Info("Event stream closed", "client", client.Id, "topic", topic)
}

func (w *WebClient) HandleListTransports(wr http.ResponseWriter, r *http.Request) {
	transports, err := w.services.Transport.ListTransports()
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, transports)
}

func (w *WebClient) HandleGetTransport(wr http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "i")
	index, err := strconv.Atoi(raw)
	if err != nil {
		w.handleError(wr, services.ServiceError{
			Code:    services.ErrCodeInvalidInput,
			Message: "Invalid transport index: " + raw,
			Cause:   err,
		})
		return
	}

	transport, err := w.services.Transport.GetTransport(index)
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, transport)
}

func (w *WebClient) HandleStats(wr http.ResponseWriter, r *http.Request) {
	stats, err := w.services.Transport.GetTransportStats()
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, stats)
}

// HandleListFrames returns the frames the gateway sent to devices homed on
// the web link
func (w *WebClient) HandleListFrames(wr http.ResponseWriter, r *http.Request) {
	writeJSON(wr, http.StatusOK, w.Outbox())
}

// HandleInjectFrame accepts a hex encoded frame as if a device had sent it
func (w *WebClient) HandleInjectFrame(wr http.ResponseWriter, r *http.Request) {
	var req struct {
		Frame string `json:"frame"`
	}
	if err := decodeJSON(r, &req); err != nil {
		w.handleError(wr, err)
		return
	}

	frame, err := hex.DecodeString(strings.ReplaceAll(req.Frame, " ", ""))
	if err != nil {
		w.handleError(wr, services.ServiceError{
			Code:    services.ErrCodeInvalidInput,
			Message: "Frame is not valid hex",
			Cause:   err,
		})
		return
	}

	msg, err := w.InjectFrame(frame)
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusAccepted, services.NewMessageEvent(msg, time.Now()))
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return services.ServiceError{
			Code:    services.ErrCodeInvalidInput,
			Message: "Invalid request body",
			Cause:   err,
		}
	}
	return nil
}

func writeJSON(wr http.ResponseWriter, status int, v any) {
	wr.Header().Set("Content-Type", "application/json")
	wr.WriteHeader(status)
	if err := json.NewEncoder(wr).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// handleError handles service errors with proper HTTP status codes
func (w *WebClient) handleError(wr http.ResponseWriter, err error) {
	var serviceErr services.ServiceError
	if !errors.As(err, &serviceErr) {
		slog.Error("Service error", "error", err)
		http.Error(wr, "Internal server error", http.StatusInternalServerError)
		return
	}

	status := http.StatusInternalServerError
	switch serviceErr.Code {
	case services.ErrCodeNotFound:
		status = http.StatusNotFound
	case services.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case services.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	case services.ErrCodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		slog.Error("Service error", "error", err)
	} else {
		slog.Debug("Request failed", "code", serviceErr.Code, "error", err)
	}

	writeJSON(wr, status, serviceErr)
}
