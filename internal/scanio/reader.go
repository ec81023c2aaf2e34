// Package scanio delivers raw scans to the pipeline: plain-text XYZ
// cloud files for replay and evaluation, and a thin UDP shim for live
// frames. Real sensor drivers live outside this module; anything that
// can emit "x y z" text rows can feed the pipeline.
package scanio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/agrinav-robotics/rowfollow/internal/row/points"
)

// ReadXYZFile parses a whitespace- or comma-separated "x y z" cloud
// file. Blank lines and '#' comments are ignored.
func ReadXYZFile(path string) (points.RawScan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scanio: %w", err)
	}
	defer f.Close()

	scan, err := ParsePoints(f)
	if err != nil {
		return nil, fmt.Errorf("scanio: %s: %w", path, err)
	}
	return scan, nil
}

// ParsePoints reads "x y z" rows from r, one point per line.
func ParsePoints(r io.Reader) (points.RawScan, error) {
	var scan points.RawScan
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: want 3 coordinates, got %d", lineNo, len(fields))
		}
		var coords [3]float64
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			coords[i] = v
		}
		scan = append(scan, r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return scan, nil
}
