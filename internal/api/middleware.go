package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// WithJSONResponse wraps an APIHandler and handles JSON response formatting.
// Handler errors come back as error envelopes with the mapped status code.
func WithJSONResponse(handler APIHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, data, err := handler(w, r)

		// Set the Content-Type header
		w.Header().Set("Content-Type", "application/json")

		if err != nil {
			status, envelope := errorEnvelope(err)

			slog.Debug("API error", "path", r.URL.Path, "status", status, "error", err)

			w.WriteHeader(status)
			if err := json.NewEncoder(w).Encode(envelope); err != nil {
				http.Error(w, `{"errorCategory":"systemError","errorCode":"genericError","errorDescription":"Failed to encode error response"}`, http.StatusInternalServerError)
			}
			return
		}

		w.WriteHeader(status)
		if data == nil {
			return
		}

		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, `{"errorCategory":"systemError","errorCode":"genericError","errorDescription":"Failed to encode response"}`, http.StatusInternalServerError)
		}
	}
}
