// Command rowfollow runs the crop-row perception service: it loads a
// trained checkpoint, receives scans over UDP (or replays a cloud
// file), and emits one row estimate per serviced frame as JSON lines on
// stdout for the navigation consumer.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agrinav-robotics/rowfollow/internal/config"
	"github.com/agrinav-robotics/rowfollow/internal/row"
	"github.com/agrinav-robotics/rowfollow/internal/row/extract"
	"github.com/agrinav-robotics/rowfollow/internal/row/pipeline"
	"github.com/agrinav-robotics/rowfollow/internal/row/points"
	"github.com/agrinav-robotics/rowfollow/internal/row/shellnet"
	"github.com/agrinav-robotics/rowfollow/internal/row/storage/sqlite"
	"github.com/agrinav-robotics/rowfollow/internal/scanio"
)

var (
	checkpoint  = flag.String("checkpoint", "model.json", "Path to the model checkpoint")
	tuningFile  = flag.String("tuning", "", "Optional JSON tuning overrides")
	udpAddr     = flag.String("udp-addr", ":2368", "UDP address to receive scans on")
	rcvBuf      = flag.Int("rcvbuf", 4<<20, "UDP receive buffer size in bytes")
	dbFile      = flag.String("db", "", "Optional SQLite file for estimate persistence")
	replayFile  = flag.String("replay", "", "Process a single XYZ cloud file and exit")
	seed        = flag.Int64("seed", 1, "Sampling seed (overridden by tuning config)")
	verbose     = flag.Bool("verbose", false, "Enable diagnostic logging")
	trace       = flag.Bool("trace", false, "Enable per-frame trace logging")
	logInterval = flag.Int("log-interval", 30, "Ingest statistics logging interval in seconds")
)

// navSink writes estimates as JSON lines for the navigation consumer.
type navSink struct {
	enc *json.Encoder
}

type navRecord struct {
	FrameID        string  `json:"frame_id"`
	TSUnixNanos    int64   `json:"ts_unix_nanos"`
	Available      bool    `json:"available"`
	RowDetected    bool    `json:"row_detected"`
	Reason         string  `json:"reason,omitempty"`
	HeadingRad     float64 `json:"heading_rad"`
	LateralOffsetM float64 `json:"lateral_offset_m"`
	Confidence     float64 `json:"confidence"`
	RowPointCount  int     `json:"row_point_count"`
}

func (s *navSink) PublishEstimate(res pipeline.FrameResult) {
	rec := navRecord{
		FrameID:     res.FrameID,
		TSUnixNanos: res.Stamp.UnixNano(),
		Available:   res.Err == nil,
	}
	if res.Err == nil {
		rec.RowDetected = res.Estimate.Valid
		rec.Reason = res.Estimate.Reason
		rec.HeadingRad = res.Estimate.HeadingRad
		rec.LateralOffsetM = res.Estimate.LateralOffsetM
		rec.Confidence = res.Estimate.Confidence
		rec.RowPointCount = res.Estimate.RowPointCount
	}
	if err := s.enc.Encode(&rec); err != nil {
		row.Opsf("[Nav] Failed to encode estimate for frame %s: %v", res.FrameID, err)
	}
}

func main() {
	flag.Parse()

	var diagW, traceW io.Writer
	if *verbose {
		diagW = os.Stderr
	}
	if *trace {
		traceW = os.Stderr
	}
	row.SetLogWriters(row.LogWriters{Ops: os.Stderr, Diag: diagW, Trace: traceW})

	model, err := shellnet.Load(*checkpoint)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	params := extract.DefaultParams()
	params.RowClass = model.RowClass()
	samplingSeed := *seed
	if *tuningFile != "" {
		tuning, err := config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		tuning.ApplyExtract(&params)
		samplingSeed = tuning.Seed(samplingSeed)
	}

	engineCfg := pipeline.EngineConfig{
		Sampler: points.NewPreprocessor(),
		Labeler: model,
		Fitter:  extract.NewExtractor(params),
		Seed:    samplingSeed,
	}
	if *dbFile != "" {
		store, err := sqlite.NewEstimateStore(*dbFile)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		defer store.Close()
		engineCfg.Store = store
	}

	engine, err := pipeline.NewEngine(engineCfg)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	sink := &navSink{enc: json.NewEncoder(os.Stdout)}

	if *replayFile != "" {
		scan, err := scanio.ReadXYZFile(*replayFile)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		res := engine.ProcessFrame(row.NewFrame(scan, time.Now()), 1)
		if res.Err != nil {
			log.Fatalf("replay: %v", res.Err)
		}
		sink.PublishEstimate(res)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runtime := pipeline.NewRuntime(engine, sink)
	go runtime.Run(ctx)

	listener := scanio.NewUDPListener(scanio.UDPListenerConfig{
		Address:     *udpAddr,
		RcvBuf:      *rcvBuf,
		LogInterval: time.Duration(*logInterval) * time.Second,
	}, runtime)
	if err := listener.Listen(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}
	fmt.Fprintln(os.Stderr, "rowfollow: shutdown complete")
}
