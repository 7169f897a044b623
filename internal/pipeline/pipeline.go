// Package pipeline drives detection batches into the tracker kernel, hands
// results to the intelligence coordinator, and emits the combined result to
// a sink.
//
// Batching-by-timeout-or-size and the serialized single-worker callback
// queue (drop-on-full rather than block) are grounded on
// internal/lidar/l2frames's FrameBuilder: a mutex-guarded accumulator with a
// time.AfterFunc flush timer, and a buffered channel drained by one
// goroutine so frame/batch results are delivered in order even though
// ingest runs concurrently with processing.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trackengine/core/internal/coordinator"
	"github.com/trackengine/core/internal/tracker"
	"github.com/trackengine/core/internal/trackerrors"
	"github.com/trackengine/core/internal/tracklog"
	"github.com/trackengine/core/internal/trackmodel"
)

// DetectionStream produces detections with bounded latency.
type DetectionStream interface {
	// Next blocks until a detection is available, ctx is done, or the
	// stream is exhausted (in which case it returns a non-nil error).
	Next(ctx context.Context) (trackmodel.Detection, error)
}

// EventSink receives each frame's combined tracking result and alerts, in
// frame order.
type EventSink interface {
	OnResult(result tracker.TrackingResult, alerts []coordinator.TacticalAlert)
}

// Config wires the pipeline's dependencies and tuning knobs, following the
// "DI config struct carries interfaces" shape of
// internal/lidar/webserver.go's pipeline wiring.
type Config struct {
	Tracker     *tracker.Tracker
	Coordinator *coordinator.Coordinator // optional; nil skips threat assessment
	Sink        EventSink                // optional

	BatchTimeout       time.Duration // default 100ms
	MaxBatchSize       int           // default 256
	PerSensorQueueSize int           // default 64, bound for per-sensor back-pressure
	MaxLatencyMS       float64       // advisory soft deadline, default 50
	workQueueSize      int           // internal: size of the serialized processing queue
}

// DefaultConfig returns the documented batching/latency defaults.
func DefaultConfig() Config {
	return Config{
		BatchTimeout:       100 * time.Millisecond,
		MaxBatchSize:       256,
		PerSensorQueueSize: 64,
		MaxLatencyMS:       50,
		workQueueSize:      8,
	}
}

// Pipeline accumulates detections into batches and drives them through the
// tracker and coordinator in frame order.
type Pipeline struct {
	cfg Config

	mu        sync.Mutex
	batch     []trackmodel.Detection
	perSensor map[trackmodel.SensorID]int
	timer     *time.Timer
	closed    bool

	workCh chan workItem
	doneCh chan struct{}

	droppedIngest   uint64 // detections dropped at ingest due to per-sensor bound
	droppedBatches  uint64 // whole batches dropped because the work queue was full
	latencyBreaches uint64
}

type workItem struct {
	batch   []trackmodel.Detection
	frameTS time.Time
}

// New constructs a running Pipeline; callers must eventually call Stop.
func New(cfg Config) *Pipeline {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultConfig().BatchTimeout
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	if cfg.PerSensorQueueSize <= 0 {
		cfg.PerSensorQueueSize = DefaultConfig().PerSensorQueueSize
	}
	if cfg.workQueueSize <= 0 {
		cfg.workQueueSize = DefaultConfig().workQueueSize
	}

	p := &Pipeline{
		cfg:       cfg,
		perSensor: make(map[trackmodel.SensorID]int),
		workCh:    make(chan workItem, cfg.workQueueSize),
		doneCh:    make(chan struct{}),
	}
	go p.worker()
	return p
}

// Ingest accepts one detection into the current batch. When a per-sensor queue bound is exceeded because
// downstream processing has stalled, the oldest detection from that
// sensor in the pending batch is dropped and a counter incremented
//.
func (p *Pipeline) Ingest(det trackmodel.Detection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	if p.perSensor[det.SensorID] >= p.cfg.PerSensorQueueSize {
		p.dropOldestLocked(det.SensorID)
	}

	p.batch = append(p.batch, det)
	p.perSensor[det.SensorID]++

	if len(p.batch) >= p.cfg.MaxBatchSize {
		p.flushLocked()
		return
	}
	if p.timer == nil {
		p.timer = time.AfterFunc(p.cfg.BatchTimeout, p.onTimeout)
	}
}

func (p *Pipeline) dropOldestLocked(sensor trackmodel.SensorID) {
	for i, d := range p.batch {
		if d.SensorID == sensor {
			p.batch = append(p.batch[:i], p.batch[i+1:]...)
			p.perSensor[sensor]--
			atomic.AddUint64(&p.droppedIngest, 1)
			return
		}
	}
}

func (p *Pipeline) onTimeout() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushLocked()
}

// flushLocked moves the pending batch to the serialized work queue. Must be
// called with mu held.
func (p *Pipeline) flushLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if len(p.batch) == 0 {
		return
	}

	batch := p.batch
	p.batch = nil
	p.perSensor = make(map[trackmodel.SensorID]int)

	// Representative timestamp is max(detection.timestamp) in the batch
	//.
	frameTS := batch[0].Timestamp
	for _, d := range batch[1:] {
		if d.Timestamp.After(frameTS) {
			frameTS = d.Timestamp
		}
	}

	select {
	case p.workCh <- workItem{batch: batch, frameTS: frameTS}:
	default:
		// Downstream is still processing the previous batch; drop this one
		// rather than block ingest, the same select-default drop
		// FrameBuilder's frameCh uses for a full callback queue.
		atomic.AddUint64(&p.droppedBatches, 1)
		tracklog.Logf("pipeline: dropped batch of %d detections: work queue full", len(batch))
	}
}

func (p *Pipeline) worker() {
	defer close(p.doneCh)
	for item := range p.workCh {
		p.runBatch(item)
	}
}

func (p *Pipeline) runBatch(item workItem) {
	start := time.Now()

	result, err := p.cfg.Tracker.Update(item.batch, item.frameTS)
	if err != nil {
		tracklog.Logf("pipeline: tracker update failed: %v", err)
		if trackerrors.Is(err, trackerrors.CodePipelineFatal) {
			return
		}
	}

	var alerts []coordinator.TacticalAlert
	if p.cfg.Coordinator != nil {
		alerts = p.cfg.Coordinator.Process(result.Active, item.frameTS)
	}

	if p.cfg.MaxLatencyMS > 0 {
		elapsedMS := float64(time.Since(start).Microseconds()) / 1000
		if elapsedMS > p.cfg.MaxLatencyMS {
			atomic.AddUint64(&p.latencyBreaches, 1)
		}
	}

	if p.cfg.Sink != nil {
		p.cfg.Sink.OnResult(result, alerts)
	}
}

// Run pulls detections from stream and ingests them until ctx is done or
// the stream returns an error. The final
// pending batch is flushed before Run returns.
func (p *Pipeline) Run(ctx context.Context, stream DetectionStream) error {
	for {
		det, err := stream.Next(ctx)
		if err != nil {
			p.mu.Lock()
			p.flushLocked()
			p.mu.Unlock()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		p.Ingest(det)
	}
}

// Stop drains any pending batch, waits for the worker to finish processing
// everything already queued (or ctx to expire), and shuts the pipeline
// down. Ingest is a no-op after Stop returns.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.flushLocked()
	p.mu.Unlock()

	close(p.workCh)

	select {
	case <-p.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports the pipeline's back-pressure and latency telemetry
// counters.
type Stats struct {
	DroppedAtIngest uint64
	DroppedBatches  uint64
	LatencyBreaches uint64
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		DroppedAtIngest: atomic.LoadUint64(&p.droppedIngest),
		DroppedBatches:  atomic.LoadUint64(&p.droppedBatches),
		LatencyBreaches: atomic.LoadUint64(&p.latencyBreaches),
	}
}
