// Package metrics exposes prometheus counters for the quota hot path.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ConsumeOutcomes counts quota consume attempts by outcome: "allowed",
// "trial_expired", "daily_limit", "trial_limit", "origin_mismatch", "error".
var ConsumeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "muse_quota_consume_total",
	Help: "Quota consume attempts by outcome.",
}, []string{"outcome"})

// ArtifactsRendered counts rendered artifacts by media type and finality.
var ArtifactsRendered = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "muse_artifacts_rendered_total",
	Help: "Artifacts rendered by media type and finality.",
}, []string{"media_type", "final"})

func Handler() http.Handler {
	return promhttp.Handler()
}
