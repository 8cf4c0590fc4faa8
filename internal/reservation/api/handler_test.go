package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/reservation"
	"ms-reservations/internal/reservation/api"
)

// Confirmation must stay webhook-only: a caller who knows a reservation
// id cannot confirm it over the public surface.
func TestConfirmIsNotPubliclyRoutable(t *testing.T) {
	log := logger.NewLogger()
	h := api.NewHandler(reservation.NewService(nil, nil, nil, nil, nil, log, 0), log)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		h.RegisterRoutes(r)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/reservations/res-1/confirm", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
