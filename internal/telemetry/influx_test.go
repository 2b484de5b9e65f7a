package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/wxstatusd/internal/zwave"
)

type capturingWriter struct {
	mu     sync.Mutex
	points []*write.Point
}

func (w *capturingWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func tagMap(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func fieldMap(p *write.Point) map[string]any {
	out := map[string]any{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestRPCPoint(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	call := zwave.Call{Op: "set", Function: "SetDeviceParameterByRef", Home: "E7A1B2C3", Node: 5, Param: zwave.LedColorParam(2)}

	p := rpcPoint(call, 1500*time.Microsecond, nil, ts)
	assert.Equal(t, Measurement, p.Name())
	assert.Equal(t, ts, p.Time())
	assert.Equal(t, map[string]string{
		"op":       "set",
		"function": "SetDeviceParameterByRef",
		"home":     "E7A1B2C3",
		"node":     "5",
		"param":    "23",
	}, tagMap(p))

	fields := fieldMap(p)
	assert.InDelta(t, 1.5, fields["elapsed_ms"], 1e-9)
	assert.Equal(t, true, fields["ok"])

	failed := rpcPoint(call, time.Second, errors.New("timeout"), ts)
	assert.Equal(t, false, fieldMap(failed)["ok"])
}

func TestRecorder_ObserveRPC(t *testing.T) {
	w := &capturingWriter{}
	r := &Recorder{writer: w}

	r.ObserveRPC(zwave.Call{Op: "get", Home: "abc", Node: 1, Param: zwave.ParamStatusModeActive}, time.Millisecond, nil)
	r.ObserveRPC(zwave.Call{Op: "set", Home: "abc", Node: 1, Param: zwave.ParamBlinkBitmask}, time.Millisecond, errors.New("x"))

	require.Len(t, w.points, 2)
	assert.Equal(t, "13", tagMap(w.points[0])["param"])
	assert.Equal(t, "31", tagMap(w.points[1])["param"])

	// Close on a recorder without a client is a no-op
	r.Close()
}

var _ zwave.Observer = (*Recorder)(nil)
