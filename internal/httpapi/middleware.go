// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/pkg/errutil"
)

const tracerName = "github.com/holomush/authcore/internal/httpapi"

// propagator reads W3C traceparent headers so request logs carry the
// caller's trace id.
var propagator = propagation.TraceContext{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument opens a server span, records metrics and a request log line,
// and turns panics into a generic 500.
func (h *Handler) instrument(route string, next http.HandlerFunc) http.Handler {
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, "authcore."+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		r = r.WithContext(ctx)

		defer func() {
			if p := recover(); p != nil {
				errutil.LogErrorContext(r.Context(), h.logger, "handler panic",
					oops.Code("HTTP_PANIC").With("route", route).Errorf("%v", p))
				writeJSON(rec, http.StatusInternalServerError, auth.Outcome{Status: auth.StatusError, Message: auth.MsgUnexpected})
			}

			elapsed := time.Since(start)
			if h.metrics != nil {
				h.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
				h.metrics.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
			}
			h.logger.InfoContext(r.Context(), "request handled",
				"route", route,
				"status", rec.status,
				"duration", elapsed)
		}()

		next(rec, r)
	})
}
