package core

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the total time spent on health probes.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is a check against one critical dependency.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs all registered probes under a short deadline. Public, no
// auth. 200 when everything reports healthy, 503 otherwise.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	components := make(map[string]componentStatus, len(s.HealthProbes))
	healthy := true

	for _, probe := range s.HealthProbes {
		if err := probe.Check(ctx); err != nil {
			healthy = false
			components[probe.Name()] = componentStatus{
				Status:  "unhealthy",
				Message: err.Error(),
			}
			continue
		}
		components[probe.Name()] = componentStatus{Status: "healthy"}
	}

	resp := healthResponse{Components: components}
	if healthy {
		resp.Status = "healthy"
		JSON(w, r, http.StatusOK, resp)
		return
	}
	resp.Status = "unhealthy"
	JSON(w, r, http.StatusServiceUnavailable, resp)
}
