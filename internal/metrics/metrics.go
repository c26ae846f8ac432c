// Package metrics define los collectors Prometheus del servicio. Viven en un
// paquete aparte para que http, permcache y provisioning los usen sin ciclos.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProvisioningEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantcore_provisioning_events_total",
		Help: "Eventos de aprovisionamiento procesados por resultado",
	}, []string{"result"}) // ok | failed | dlq | malformed

	ProvisioningDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tenantcore_provisioning_duration_seconds",
		Help:    "Duración total del aprovisionamiento de un tenant",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	ProvisioningStepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tenantcore_provisioning_step_duration_seconds",
		Help:    "Duración de cada paso del aprovisionamiento",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})

	PermCacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantcore_permcache_requests_total",
		Help: "Lecturas del cache de permisos por resultado",
	}, []string{"result"}) // hit | miss | error

	PermCacheInvalidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantcore_permcache_invalidations_total",
		Help: "Invalidaciones del cache de permisos por alcance",
	}, []string{"scope"}) // user_tenant | user | tenant

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantcore_http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tenantcore_http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func all() []prometheus.Collector {
	return []prometheus.Collector{
		ProvisioningEvents,
		ProvisioningDuration,
		ProvisioningStepDuration,
		PermCacheRequests,
		PermCacheInvalidations,
		HTTPRequests,
		HTTPDuration,
	}
}

// Register registra los collectors en reg (o el default si es nil).
// Registrar dos veces no es error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range all() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// Handler expone /metrics para el gatherer dado (default si es nil).
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
