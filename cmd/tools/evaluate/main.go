// Command evaluate runs the perception pipeline once over a stored
// cloud file: it prints the per-class label counts and the resulting
// row estimate, and can render the labelled scan to a PNG.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"

	"github.com/agrinav-robotics/rowfollow/internal/config"
	"github.com/agrinav-robotics/rowfollow/internal/row"
	"github.com/agrinav-robotics/rowfollow/internal/row/extract"
	"github.com/agrinav-robotics/rowfollow/internal/row/monitor"
	"github.com/agrinav-robotics/rowfollow/internal/row/points"
	"github.com/agrinav-robotics/rowfollow/internal/row/shellnet"
	"github.com/agrinav-robotics/rowfollow/internal/scanio"
)

var (
	checkpoint = flag.String("checkpoint", "model.json", "Path to the model checkpoint")
	cloudFile  = flag.String("cloud", "", "XYZ cloud file to evaluate (required)")
	tuningFile = flag.String("tuning", "", "Optional JSON tuning overrides")
	plotFile   = flag.String("plot", "", "Optional PNG output of the labelled scan")
	seed       = flag.Int64("seed", 1, "Sampling seed")
)

func main() {
	flag.Parse()
	row.SetLogWriters(row.LogWriters{Ops: os.Stderr})

	if *cloudFile == "" {
		log.Fatal("evaluate: -cloud is required")
	}

	model, err := shellnet.Load(*checkpoint)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	scan, err := scanio.ReadXYZFile(*cloudFile)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	params := extract.DefaultParams()
	params.RowClass = model.RowClass()
	if *tuningFile != "" {
		tuning, err := config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		tuning.ApplyExtract(&params)
	}

	rng := rand.New(rand.NewSource(*seed))
	sampled, err := points.NewPreprocessor().Sample(scan, rng)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	labels, err := model.Label(sampled)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	counts := make([]int, len(model.Labels()))
	for _, l := range labels {
		counts[l]++
	}
	fmt.Printf("scan: %d raw points, %d sampled\n", len(scan), len(sampled))
	for i, n := range counts {
		fmt.Printf("  %-12s %5d\n", model.Labels().Name(i), n)
	}

	est, err := extract.NewExtractor(params).Extract(sampled, labels)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if est.Valid {
		fmt.Printf("row: heading %.2f deg, lateral offset %.3f m, confidence %.2f (%d points, residual %.3f m)\n",
			est.HeadingRad*180/math.Pi, est.LateralOffsetM, est.Confidence,
			est.RowPointCount, est.ResidualRMS)
	} else {
		fmt.Printf("no row detected: %s (%d row points)\n", est.Reason, est.RowPointCount)
	}

	if *plotFile != "" {
		err := monitor.SavePNG(monitor.LabelPlot{
			Points:   sampled,
			Labels:   labels,
			RowClass: model.RowClass(),
			Estimate: est,
			Title:    *cloudFile,
		}, *plotFile)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		fmt.Printf("plot written to %s\n", *plotFile)
	}
}
