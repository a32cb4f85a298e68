package handlers

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(devices *DeviceHandler, settings *SettingsHandler, hub *Hub) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", HealthCheck).Methods("GET")

	r.HandleFunc("/devices", instrument("/devices", devices.HandleDevices)).Methods("GET")
	r.HandleFunc("/devices/{id}/samples", instrument("/devices/{id}/samples", devices.HandleSamples)).Methods("POST")
	r.HandleFunc("/devices/{id}/analysis", instrument("/devices/{id}/analysis", devices.HandleAnalysis)).Methods("GET")
	r.HandleFunc("/devices/{id}/minutes", instrument("/devices/{id}/minutes", devices.HandleMinutes)).Methods("GET")
	r.HandleFunc("/devices/{id}/series/{name}", instrument("/devices/{id}/series/{name}", devices.HandleSeries)).Methods("GET")
	r.HandleFunc("/devices/{id}/export", instrument("/devices/{id}/export", devices.HandleExport)).Methods("POST")

	r.HandleFunc("/settings/receiver", instrument("/settings/receiver", settings.HandleGetReceiver)).Methods("GET")
	r.HandleFunc("/settings/receiver", instrument("/settings/receiver", settings.HandlePutReceiver)).Methods("PUT")

	r.HandleFunc("/ws", hub.ServeWS).Methods("GET")

	r.Path("/metrics").Handler(promhttp.Handler())

	return r
}
