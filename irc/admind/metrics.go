package admind

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/labstack/echo/v4"
	"github.com/presbrey/ircengine/irc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var adminRequestsTotal = promauto.With(irc.Registry).NewCounterVec(
	prometheus.CounterOpts{
		Name: "ircengine_admin_requests_total",
		Help: "Admin API requests by method and status code",
	},
	[]string{"method", "code"},
)

// requestMetrics counts admin requests. Errors have not been written yet
// when next returns, so their status comes from the error.
func requestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)

		status := c.Response().Status
		if err != nil {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			} else {
				status = http.StatusInternalServerError
			}
		}
		adminRequestsTotal.WithLabelValues(c.Request().Method, strconv.Itoa(status)).Inc()
		return err
	}
}

// MetricsRouter serves irc.Registry at path and a liveness probe at
// /healthz.
func MetricsRouter(path string) *mux.Router {
	r := mux.NewRouter()
	r.Handle(path, promhttp.HandlerFor(irc.Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return r
}

// NewMetricsServer returns an http.Server for MetricsRouter on addr. The
// caller runs ListenAndServe and Shutdown.
func NewMetricsServer(addr, path string) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: MetricsRouter(path),
	}
}
