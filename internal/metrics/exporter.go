package metrics

import (
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/NexusBot-official/Nexus/internal/logging"
)

// Exporter serves /metrics and /healthz.
type Exporter struct {
	metrics *Metrics
	server  *fasthttp.Server
	metricH fasthttp.RequestHandler
}

func NewExporter(m *Metrics) *Exporter {
	e := &Exporter{
		metrics: m,
		metricH: fasthttpadaptor.NewFastHTTPHandler(
			promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{}),
		),
	}
	e.server = &fasthttp.Server{
		Handler:      e.Handle,
		Name:         "nexus-metrics",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return e
}

func (e *Exporter) Handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/metrics":
		e.metricH(ctx)
	case "/healthz":
		snap := e.metrics.Snapshot()
		if !snap.Healthy {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			fmt.Fprintf(ctx, "stalled: %d events in flight\n", snap.InFlight)
			return
		}
		fmt.Fprintf(ctx, "ok\n")
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

// Serve blocks on ln until Shutdown.
func (e *Exporter) Serve(ln net.Listener) error {
	return e.server.Serve(ln)
}

func (e *Exporter) ListenAndServe(addr string) error {
	logging.Info("[METRICS] Serving /metrics on %s", addr)
	return e.server.ListenAndServe(addr)
}

func (e *Exporter) Shutdown() error {
	return e.server.Shutdown()
}
