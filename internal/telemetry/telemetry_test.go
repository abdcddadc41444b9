package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
)

func TestInitDisabledInstallsNoop(t *testing.T) {
	require.NoError(t, Init(context.Background(), Options{Enabled: false}))
	assert.False(t, Enabled())

	h, err := Meter("").Float64Histogram("test.noop")
	require.NoError(t, err)
	h.Record(context.Background(), 1)
	Shutdown(context.Background())
}

func TestInitEnabledExportsOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(context.Background(), Options{Enabled: true, Version: "test", Writer: &buf}))
	assert.True(t, Enabled())

	counter, err := Meter("pnpsetup/test").Int64Counter("pnpsetup.test.counter", metric.WithDescription("test"))
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	_, span := Tracer("").Start(context.Background(), "test.span")
	span.End()

	Shutdown(context.Background())
	assert.False(t, Enabled())

	out := buf.String()
	assert.Contains(t, out, "pnpsetup.test.counter")
	assert.Contains(t, out, "test.span")

	// restore no-op providers for other tests
	require.NoError(t, Init(context.Background(), Options{}))
}
