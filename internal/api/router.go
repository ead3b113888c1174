package api

import "net/http"

func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/plan", h.Plan)
	mux.HandleFunc("GET /v1/pending", h.PendingList)
	mux.HandleFunc("GET /v1/pending/{id}", h.PendingGet)
	mux.HandleFunc("POST /v1/execute/{id}", h.Execute)
	mux.HandleFunc("POST /v1/inbound/telegram", h.InboundTelegram)
	mux.HandleFunc("POST /v1/inbound/twilio", h.InboundTwilio)
	mux.HandleFunc("POST /v1/notify/mute", h.Mute)
	mux.HandleFunc("GET /v1/events", h.EventsStream)
	mux.HandleFunc("GET /v1/receipts/{id}", h.Receipt)
	mux.HandleFunc("GET /v1/verify/{id}", h.Verify)
	mux.HandleFunc("POST /v1/autopilot/run", h.AutopilotRun)
	mux.HandleFunc("GET /v1/autopilot/last", h.AutopilotLast)
	mux.HandleFunc("GET /healthz", h.Health)
	return mux
}
