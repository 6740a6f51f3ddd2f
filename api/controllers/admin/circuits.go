package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kentramx/kentramx-sub001/api/responses"
	pkgerrors "github.com/kentramx/kentramx-sub001/pkg/errors"
	"github.com/kentramx/kentramx-sub001/pkg/logger"
	"github.com/kentramx/kentramx-sub001/pkg/resilience"
)

// CircuitRegistry exposes breaker state to operators.
type CircuitRegistry interface {
	Statuses() []resilience.Status
	Status(name string) (resilience.Status, bool)
	Reset(name string) bool
}

type circuitListResponse struct {
	Circuits []resilience.Status `json:"circuits"`
}

func AdminCircuitsList(registry CircuitRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if registry == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "circuit registry unavailable"))
			return
		}
		statuses := registry.Statuses()
		if statuses == nil {
			statuses = []resilience.Status{}
		}
		responses.WriteSuccess(w, circuitListResponse{Circuits: statuses})
	}
}

// AdminCircuitReset forces a breaker back to CLOSED.
func AdminCircuitReset(registry CircuitRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if registry == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "circuit registry unavailable"))
			return
		}

		name := chi.URLParam(r, "name")
		if !registry.Reset(name) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "circuit not found"))
			return
		}
		if logg != nil {
			ctx := logg.WithField(r.Context(), "circuit", name)
			logg.Warn(ctx, "admin.circuit.reset")
		}

		status, _ := registry.Status(name)
		responses.WriteSuccess(w, status)
	}
}
