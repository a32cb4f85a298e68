package handlers

import (
	"encoding/json"
	"net"
	"net/http"

	"pulse-stream-processor/config"
)

// AddressSetter retargets the sensor connection.
type AddressSetter interface {
	SetAddress(address string)
	Address() string
}

type SettingsHandler struct {
	settingsFile string
	receiver     AddressSetter
}

// NewSettingsHandler builds the settings endpoints. receiver may be nil when
// the TCP receiver is disabled; the address is still persisted.
func NewSettingsHandler(settingsFile string, receiver AddressSetter) *SettingsHandler {
	return &SettingsHandler{settingsFile: settingsFile, receiver: receiver}
}

type receiverSettings struct {
	Address string `json:"address"`
}

func (h *SettingsHandler) HandleGetReceiver(w http.ResponseWriter, r *http.Request) {
	if h.receiver == nil {
		http.Error(w, "receiver is disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, receiverSettings{Address: h.receiver.Address()})
}

func (h *SettingsHandler) HandlePutReceiver(w http.ResponseWriter, r *http.Request) {
	var req receiverSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if _, _, err := net.SplitHostPort(req.Address); err != nil {
		http.Error(w, "address must be host:port", http.StatusBadRequest)
		return
	}

	if err := config.SaveReceiverAddress(h.settingsFile, req.Address); err != nil {
		http.Error(w, "Failed to save settings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if h.receiver != nil {
		h.receiver.SetAddress(req.Address)
	}
	writeJSON(w, http.StatusOK, req)
}
