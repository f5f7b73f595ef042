package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xhs_sign/assets"
)

// Metrics 每个 Server 一个独立 registry，测试里可以并存
type Metrics struct {
	reg      *prometheus.Registry
	signed   prometheus.Counter
	failures *prometheus.CounterVec
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	sessions prometheus.Counter
	limited  prometheus.Counter
	assets   *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		signed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xhs_sign_signatures_total",
			Help: "Signature sets issued by /sign.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xhs_sign_failures_total",
			Help: "Failed signing requests by reason.",
		}, []string{"reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xhs_sign_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xhs_sign_http_request_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"route"}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xhs_sign_sessions_created_total",
			Help: "Sessions created by /sessions.",
		}),
		limited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xhs_sign_rate_limited_total",
			Help: "Requests rejected by the global rate limit.",
		}),
		assets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xhs_sign_assets_info",
			Help: "Signing constants in use, always 1.",
		}, []string{"version_x1", "sign_svn", "sign_version"}),
	}
	m.reg.MustRegister(m.signed, m.failures, m.requests, m.latency, m.sessions, m.limited, m.assets,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// SetAssets 记录签名器当前使用的常量版本
func (m *Metrics) SetAssets(a *assets.Assets) {
	m.assets.Reset()
	m.assets.WithLabelValues(a.VersionX1, a.SignSvn, a.SignVersion).Set(1)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// middleware 按 chi 路由模板统计，避免 id 把 label 撑爆
func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		m.requests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
