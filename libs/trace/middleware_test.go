package trace

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/gin-gonic/gin"
)

func TestMiddlewareNamesAndTagsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(sdktrace.NewTracerProvider()) })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware("storefront-test"))
	r.GET("/ping/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping/42", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name != "GET /ping/:id" {
		t.Fatalf("span name = %q, want method + route", span.Name)
	}

	var sawStatus bool
	for _, attr := range span.Attributes {
		if attr.Key == "http.status_code" && attr.Value.AsInt64() == http.StatusOK {
			sawStatus = true
		}
	}
	if !sawStatus {
		t.Fatal("span missing http.status_code attribute")
	}
}
