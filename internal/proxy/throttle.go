// Package proxy is a chaos-injection reverse proxy: it sits in front of
// a peer node and adds artificial latency and/or forced error
// responses, so integration tests can drive the replication
// coordinator's nodedown and timeout classification paths against a
// real HTTP round trip instead of a fake RemoteCaster.
package proxy

import (
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"objectstore/pkg/logging"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "throttle_proxy_requests_total",
		Help: "Total requests handled by the chaos-injection proxy.",
	}, []string{"outcome"})
)

// ThrottleProxy forwards every request to TargetURL after sleeping
// Delay, and fails a random ErrorRate fraction of requests outright.
type ThrottleProxy struct {
	TargetURL string
	Delay     time.Duration
	ErrorRate float64

	client *http.Client
	log    *logging.Logger
}

func NewThrottleProxy(targetURL string, delay time.Duration, errorRate float64, log *logging.Logger) *ThrottleProxy {
	return &ThrottleProxy{
		TargetURL: targetURL,
		Delay:     delay,
		ErrorRate: errorRate,
		client:    &http.Client{Timeout: 30 * time.Second},
		log:       log,
	}
}

func (p *ThrottleProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.Delay > 0 {
		time.Sleep(p.Delay)
	}

	if p.ErrorRate > 0 && rand.Float64() < p.ErrorRate {
		requestsTotal.WithLabelValues("injected_error").Inc()
		http.Error(w, "chaos: simulated network error", http.StatusInternalServerError)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, p.TargetURL+r.URL.Path, r.Body)
	if err != nil {
		requestsTotal.WithLabelValues("build_request_error").Inc()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	req.Header = r.Header.Clone()

	resp, err := p.client.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues("forward_error").Inc()
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.log.Warn("error copying proxied response body", zap.Error(err))
	}
	requestsTotal.WithLabelValues("forwarded").Inc()
}

// Start blocks serving on addr.
func (p *ThrottleProxy) Start(addr string) error {
	p.log.Info("starting chaos proxy",
		zap.String("addr", addr),
		zap.String("target", p.TargetURL),
		zap.Duration("delay", p.Delay),
		zap.Float64("error_rate", p.ErrorRate))

	server := &http.Server{
		Addr:              addr,
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}
