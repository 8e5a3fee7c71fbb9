// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	m "github.com/mkhts/gopos"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Route the library log to stderr, or to a rotated file with --trace
func setupLogger(a *cmdOpt, stderr io.Writer) func() {
	var w io.Writer = stderr
	var lj *lumberjack.Logger
	if a.traceFn != "" {
		lj = &lumberjack.Logger{
			Filename:   a.traceFn,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     7, // days
			LocalTime:  false,
		}
		w = lj
	}
	m.SetLogger(m.NewLogger(a.opt.Log, w))
	return func() {
		m.SetLogger(nil)
		if lj != nil {
			lj.Close()
		}
	}
}

// Prepare output file
func prepareOutput(fn string, stdout io.Writer) (io.WriteCloser, error) {

	// Use stdout if no output file is specified
	if len(fn) == 0 {
		return &nopCloser{stdout}, nil
	}

	// Create output file
	posf, err := os.Create(fn)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return posf, nil
}

// Close output file
func closeOutput(pos io.WriteCloser) {
	if pos != nil {
		pos.Close()
	}
}

// nopCloser - WriteCloser that ignores close operations
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// Print pos file header
func printPosHeader(pos io.Writer, a *cmdOpt, sess *m.Session, seq *m.SolutionSequence) {
	fmt.Fprintf(pos, "%% program   : %s\n", filepath.Base(a.cmdName))
	fmt.Fprintf(pos, "%% inp file  : %s\n", a.inFn)
	fmt.Fprintf(pos, "%% session   : %s\n", sess.ID)
	fmt.Fprintf(pos, "%% pos mode  : %s (%s)\n", a.opt.Mode, a.opt.SolType)
	if ts, te, ok := seqSpan(seq); ok {
		fmt.Fprintf(pos, "%% obs start : %s\n", timeLabel(ts))
		fmt.Fprintf(pos, "%% obs end   : %s\n", timeLabel(te))
	}
	fmt.Fprintf(pos, "%% elev mask : %.1f deg\n", a.opt.ElMask)
	fmt.Fprintf(pos, "%% navi sys  : %s\n", &a.opt.NavSys)
	switch a.opt.Mode {
	case m.SPP:
		fmt.Fprintf(pos, "%%  GPST                 latitude(deg) longitude(deg)  height(m)   Q  ns     clk_bias(m)      isb(R)(m)      isb(E)(m)      isb(C)(m)       gdop       pdop       hdop       vdop\n")
	case m.DGPS:
		llh := sess.RefPos.ToLLH()
		fmt.Fprintf(pos, "%% ref pos   : %.8f %.8f %.3f\n", m.ToDeg(llh.Lat), m.ToDeg(llh.Lon), llh.Hei)
		fmt.Fprintf(pos, "%%  GPST                 latitude(deg) longitude(deg)  height(m)   Q  ns     clk_bias(m)      isb(R)(m)      isb(E)(m)      isb(C)(m)       gdop       pdop     age(s)       vdop\n")
	}
}

// First and last epochs of the sequence regardless of its direction
func seqSpan(seq *m.SolutionSequence) (ts, te m.GTime, ok bool) {
	if seq.Len() == 0 {
		return
	}
	ts, te = seq.Sols[0].Time, seq.Sols[seq.Len()-1].Time
	if te.Diff(ts) < 0 {
		ts, te = te, ts
	}
	return ts, te, true
}

func timeLabel(t m.GTime) string {
	return fmt.Sprintf("%s(UTC) (week%d %7.1fs)(GPST)", roundedTime(t), t.Week, t.Sec)
}

// Time rounded to milliseconds
func roundedTime(t m.GTime) string {
	t2 := m.GTime{
		Week: t.Week,
		Sec:  math.Round(t.Sec*1000) / 1000,
	}
	return t2.ToTime().UTC().Format("2006/01/02 15:04:05.000")
}

// Output one line of the pos file
func printPos(pos io.Writer, mode m.Mode, sol *m.Solution) {
	llh := sol.Pos.ToLLH()
	gdop, pdop, hdop, vdop := sol.Dop[0], sol.Dop[1], sol.Dop[2], sol.Dop[3]
	clk := sol.Dtr[0] * m.C
	isbR, isbE, isbC := sol.Dtr[1]*m.C, sol.Dtr[2]*m.C, sol.Dtr[3]*m.C
	switch mode {
	case m.DGPS:
		fmt.Fprintf(pos, "%s %13.9f %14.9f %10.4f %3d %3d %16.4f %14.4f %14.4f %14.4f %10.3f %10.3f %10.3f %10.3f\n", roundedTime(sol.Time), m.ToDeg(llh.Lat), m.ToDeg(llh.Lon), llh.Hei, sol.Quality.Q(), sol.Ns, clk, isbR, isbE, isbC, gdop, pdop, sol.Age, vdop)
	default:
		fmt.Fprintf(pos, "%s %13.9f %14.9f %10.4f %3d %3d %16.4f %14.4f %14.4f %14.4f %10.3f %10.3f %10.3f %10.3f\n", roundedTime(sol.Time), m.ToDeg(llh.Lat), m.ToDeg(llh.Lon), llh.Hei, sol.Quality.Q(), sol.Ns, clk, isbR, isbE, isbC, gdop, pdop, hdop, vdop)
	}
}

// Solutions as point features plus the trajectory as one line string
func trajectory(id string, seq *m.SolutionSequence) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	line := orb.LineString{}
	for i := range seq.Sols {
		sol := &seq.Sols[i]
		llh := sol.Pos.ToLLH()
		pt := orb.Point{m.ToDeg(llh.Lon), m.ToDeg(llh.Lat)}

		f := geojson.NewFeature(pt)
		f.Properties["Time"] = sol.Time.ToTime().UTC().Format(time.RFC3339Nano)
		f.Properties["Height"] = llh.Hei
		f.Properties["Q"] = sol.Quality.Q()
		f.Properties["Ns"] = sol.Ns
		f.Properties["PDOP"] = sol.Dop[1]
		f.Properties["Sigma"] = math.Sqrt(sol.Qr[0] + sol.Qr[1] + sol.Qr[2])
		if sol.Exclude != "" {
			f.Properties["Exclude"] = string(sol.Exclude)
		}
		fc.Append(f)
		line = append(line, pt)
	}
	if len(line) > 1 {
		ts, te, _ := seqSpan(seq)
		lf := geojson.NewFeature(line)
		lf.Properties["Session"] = id
		lf.Properties["PointCount"] = len(line)
		lf.Properties["Duration"] = te.Diff(ts)
		fc.Append(lf)
	}
	return fc
}

// Write the trajectory as GeoJSON
func writeGeoJSON(fn, id string, seq *m.SolutionSequence) error {
	b, err := trajectory(id, seq).MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(fn, b, 0644)
}
