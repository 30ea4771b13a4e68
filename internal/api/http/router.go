package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter wires the job endpoints and the health probe.
func NewRouter(svc Service) *mux.Router {
	r := mux.NewRouter()
	h := NewJobHandler(svc)
	r.HandleFunc("/scanner/create", h.CreateScannerJob).Methods(http.MethodGet)
	r.HandleFunc("/sqs_listener/create", h.CreateSQSListenerJob).Methods(http.MethodGet)
	r.HandleFunc("/delete", h.DeleteJob).Methods(http.MethodGet)
	r.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	return r
}
