package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// PlanNone labels requests that never resolved a tenant.
const PlanNone = "none"

// routeUnmatched labels requests no registered pattern served.
const routeUnmatched = "unmatched"

// requestLabels is filled in by inner middleware once the tenant's plan is
// known, so the outer recorder can label the request by plan.
type requestLabels struct {
	plan string
}

type requestLabelsKey struct{}

// AnnotatePlan tags the in-flight request with the tenant's plan. It is a
// no-op outside Middleware.
func AnnotatePlan(ctx context.Context, plan string) {
	if l, ok := ctx.Value(requestLabelsKey{}).(*requestLabels); ok && plan != "" {
		l.plan = plan
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// routeLabel uses the ServeMux pattern that matched, which keeps tenant
// and file IDs out of the label set.
func routeLabel(r *http.Request) string {
	if r.Pattern == "" || r.Pattern == "/" {
		return routeUnmatched
	}
	return r.Pattern
}

// Middleware records request count and latency by route and plan. The
// /metrics scrape itself is not recorded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		labels := &requestLabels{plan: PlanNone}
		r = r.WithContext(context.WithValue(r.Context(), requestLabelsKey{}, labels))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		route := routeLabel(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, route, labels.plan, strconv.Itoa(rec.status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, labels.plan).Observe(time.Since(start).Seconds())
	})
}
