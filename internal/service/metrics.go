package service

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opCreate = "create"
	opUpdate = "update"
	opRelink = "relink"
)

// Margin timeline writes partitioned by operation and outcome
var marginMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "margin_mutations_total",
		Help: "Total number of margin timeline write attempts",
	},
	[]string{"operation", "outcome"},
)

func observeMutation(operation string, err error) {
	marginMutationsTotal.WithLabelValues(operation, mutationOutcome(err)).Inc()
}

func mutationOutcome(err error) string {
	if err == nil {
		return "committed"
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		return "failed"
	}
	switch serviceErr.Status {
	case http.StatusConflict:
		return "conflict"
	case http.StatusNotFound:
		return "not_found"
	default:
		return "rejected"
	}
}
