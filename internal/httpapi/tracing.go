package httpapi

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/agentlens/sentinel/observer"
)

var httpTracer = otel.Tracer("github.com/agentlens/sentinel/internal/httpapi")

// withTracing starts one span per request, tagged with whichever of the
// observer package's semantic attribute keys this request's path/query
// carries — hook type, session id, correlation id. This is the
// request-boundary span; the root package's own Tracer abstraction covers
// the spans nested inside Ingestor/MetricsService calls.
func withTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := httpTracer.Start(r.Context(), r.Method+" "+r.Pattern)
		defer span.End()

		if hookType := r.PathValue("type"); hookType != "" {
			span.SetAttributes(observer.AttrEventType.String(hookType))
		}
		if id := r.PathValue("id"); id != "" {
			span.SetAttributes(observer.AttrSessionID.String(id))
		}
		if cid := r.URL.Query().Get("correlation_id"); cid != "" {
			span.SetAttributes(observer.AttrCorrelation.String(cid))
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", rec.status))
	})
}

// statusRecorder captures the status code a handler wrote so it can be
// attached to the request span after ServeHTTP returns.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
