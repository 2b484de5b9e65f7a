// Package telemetry exports Z-Wave RPC timings to InfluxDB.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/zwave"
)

// Measurement is the InfluxDB measurement name for RPC points.
const Measurement = "zwave_rpc"

const pingTimeout = 10 * time.Second

var ErrConnectionFailed = errors.New("influxdb connection failed")

// Config holds InfluxDB settings.
type Config struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     int
	FlushInterval time.Duration
}

// pointWriter is the slice of api.WriteAPI the recorder uses.
type pointWriter interface {
	WritePoint(p *write.Point)
}

// Recorder implements zwave.Observer by writing one point per RPC.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	writer   pointWriter
	done     chan struct{}
}

// Connect verifies the server is reachable and starts a batching writer.
func Connect(ctx context.Context, cfg Config) (*Recorder, error) {
	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(uint(cfg.BatchSize))
	}
	if cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	ok, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if !ok {
		client.Close()
		return nil, fmt.Errorf("%w: ping returned false", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	r := &Recorder{
		client:   client,
		writeAPI: writeAPI,
		writer:   writeAPI,
		done:     make(chan struct{}),
	}
	go r.drainErrors()

	log.Info().Str("url", cfg.URL).Str("bucket", cfg.Bucket).Msg("Connected to InfluxDB")
	return r, nil
}

func (r *Recorder) drainErrors() {
	errs := r.writeAPI.Errors()
	for {
		select {
		case <-r.done:
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("InfluxDB write failed")
		}
	}
}

// ObserveRPC queues a point for the call. It never blocks on the network.
func (r *Recorder) ObserveRPC(call zwave.Call, elapsed time.Duration, err error) {
	r.writer.WritePoint(rpcPoint(call, elapsed, err, time.Now()))
}

// Close flushes pending points and closes the client. Safe on a nil Recorder.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	if r.writeAPI != nil {
		r.writeAPI.Flush()
	}
	if r.done != nil {
		close(r.done)
	}
	if r.client != nil {
		r.client.Close()
	}
}

func rpcPoint(call zwave.Call, elapsed time.Duration, err error, ts time.Time) *write.Point {
	tags := map[string]string{
		"op":       call.Op,
		"function": call.Function,
		"home":     call.Home,
		"node":     strconv.Itoa(int(call.Node)),
		"param":    strconv.Itoa(int(call.Param)),
	}
	fields := map[string]interface{}{
		"elapsed_ms": float64(elapsed.Microseconds()) / 1000,
		"ok":         err == nil,
	}
	return write.NewPoint(Measurement, tags, fields, ts)
}
