package profiling

import (
	"net"
	"net/http"

	// Required for profiling
	_ "net/http/pprof"

	"github.com/blockkernel/blockkernel/infrastructure/logger"
	"github.com/blockkernel/blockkernel/util/panics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Start serves the pprof handlers and, when gatherer is not nil, the
// metrics it gathers under /metrics on the given port.
func Start(port string, gatherer prometheus.Gatherer, log *logger.Logger) {
	spawn := panics.GoroutineWrapperFunc(log)
	spawn(func() {
		listenAddr := net.JoinHostPort("", port)
		log.Infof("Profile server listening on %s", listenAddr)
		mux := http.NewServeMux()
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
		if gatherer != nil {
			mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
		}
		mux.Handle("/", http.RedirectHandler("/debug/pprof/", http.StatusSeeOther))
		log.Error(http.ListenAndServe(listenAddr, mux))
	})
}
