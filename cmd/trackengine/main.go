package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/trackengine/core/internal/coordinator"
	"github.com/trackengine/core/internal/pipeline"
	"github.com/trackengine/core/internal/trackconfig"
	"github.com/trackengine/core/internal/tracker"
	"github.com/trackengine/core/internal/trackfusion"
	"github.com/trackengine/core/internal/trackmodel"
)

var (
	configPath  = flag.String("config", "", "path to a tuning config JSON file (optional)")
	numTargets  = flag.Int("targets", 3, "number of synthetic targets to simulate")
	frameRateHz = flag.Float64("rate", 10, "synthetic detection rate in Hz")
	durationS   = flag.Int("duration", 0, "seconds to run before stopping (0 = run until interrupted)")
)

func main() {
	flag.Parse()

	cfg := trackconfig.Empty()
	if *configPath != "" {
		loaded, err := trackconfig.Load(*configPath)
		if err != nil {
			log.Fatalf("trackengine: failed to load config: %v", err)
		}
		cfg = loaded
	}

	fuser := trackfusion.New(cfg.FusionConfig(), nil)
	trk := tracker.New(cfg.TrackerConfig(), fuser)
	coord := coordinator.New(cfg.CoordinatorConfig(), coordinator.DefaultRuleBasedPolicy())

	sink := &logSink{}
	p := pipeline.New(pipeline.Config{
		Tracker:     trk,
		Coordinator: coord,
		Sink:        sink,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *durationS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*durationS)*time.Second)
		defer cancel()
	}

	stream := newSyntheticStream(*numTargets, *frameRateHz)
	log.Printf("trackengine: simulating %d targets at %.1f Hz", *numTargets, *frameRateHz)

	if err := p.Run(ctx, stream); err != nil && ctx.Err() == nil {
		log.Printf("trackengine: stream error: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		log.Printf("trackengine: stop error: %v", err)
	}

	stats := p.Stats()
	log.Printf("trackengine: done. frames emitted=%d dropped_ingest=%d dropped_batches=%d latency_breaches=%d",
		sink.frames, stats.DroppedAtIngest, stats.DroppedBatches, stats.LatencyBreaches)
}

// logSink prints each frame's track and alert counts, standing in for a
// production exporter that would fan results out to a store or dashboard.
type logSink struct {
	frames int
}

func (s *logSink) OnResult(result tracker.TrackingResult, alerts []coordinator.TacticalAlert) {
	s.frames++
	log.Printf("frame %s: active=%d new=%d deleted=%d alerts=%d",
		result.FrameTS.Format(time.RFC3339Nano), len(result.Active), len(result.New), len(result.Deleted), len(alerts))
	for _, a := range alerts {
		log.Printf("  alert: track=%s urgency=%.2f threat=%s", a.Threat.TrackID, a.Urgency, a.Threat.ThreatLevel)
	}
}

// syntheticStream emits detections for a handful of targets moving on
// straight lines with small per-frame jitter, the same role the UDP packet
// receivers in cmd/lidar and cmd/radar play for live hardware.
type syntheticStream struct {
	targets []*simTarget
	period  time.Duration
	next    time.Time
	rng     *rand.Rand
	idx     int
}

type simTarget struct {
	pos trackmodel.Position3D
	vel trackmodel.Velocity3D
}

func newSyntheticStream(n int, hz float64) *syntheticStream {
	rng := rand.New(rand.NewSource(1))
	targets := make([]*simTarget, n)
	for i := range targets {
		angle := 2 * math.Pi * float64(i) / float64(n)
		targets[i] = &simTarget{
			pos: trackmodel.Position3D{X: 50 * math.Cos(angle), Y: 50 * math.Sin(angle), Z: 0},
			vel: trackmodel.Velocity3D{VX: -2 * math.Cos(angle), VY: -2 * math.Sin(angle), VZ: 0},
		}
	}
	return &syntheticStream{
		targets: targets,
		period:  time.Duration(float64(time.Second) / hz),
		next:    time.Now(),
		rng:     rng,
	}
}

func (s *syntheticStream) Next(ctx context.Context) (trackmodel.Detection, error) {
	if ctx.Err() != nil {
		return trackmodel.Detection{}, ctx.Err()
	}

	target := s.targets[s.idx%len(s.targets)]
	if s.idx%len(s.targets) == 0 {
		now := time.Now()
		if s.next.After(now) {
			select {
			case <-ctx.Done():
				return trackmodel.Detection{}, ctx.Err()
			case <-time.After(s.next.Sub(now)):
			}
		}
		s.next = s.next.Add(s.period)
		dt := s.period.Seconds()
		target.pos.X += target.vel.VX * dt
		target.pos.Y += target.vel.VY * dt
		target.pos.Z += target.vel.VZ * dt
	}

	jitter := func() float64 { return (s.rng.Float64() - 0.5) * 0.2 }
	conf, err := trackmodel.NewConfidence(0.85 + s.rng.Float64()*0.1)
	if err != nil {
		return trackmodel.Detection{}, fmt.Errorf("synthetic confidence: %w", err)
	}

	det := trackmodel.Detection{
		Timestamp: time.Now().UTC(),
		Position: trackmodel.Position3D{
			X: target.pos.X + jitter(),
			Y: target.pos.Y + jitter(),
			Z: target.pos.Z + jitter(),
		},
		Confidence: conf,
		SensorID:   trackmodel.SensorID(fmt.Sprintf("sim-%d", s.idx%len(s.targets))),
	}
	s.idx++
	return det, nil
}
