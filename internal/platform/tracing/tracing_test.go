package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitWithExporter(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	require.NoError(t, InitWithExporter("approver-selection-test", "0.0.0", exporter))
	t.Cleanup(func() { _ = Shutdown(context.Background()) })

	_, span := Tracer().Start(context.Background(), "select")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "select", spans[0].Name)

	// Later calls keep the first provider.
	require.NoError(t, InitWithExporter("other", "1.0.0", tracetest.NewInMemoryExporter()))
	_, span = Tracer().Start(context.Background(), "again")
	span.End()
	assert.Len(t, exporter.GetSpans(), 2)
}
