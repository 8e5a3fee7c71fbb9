// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	m "github.com/mkhts/gopos"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testLLH   = m.PosLLH{Lat: m.ToRad(35.6812), Lon: m.ToRad(139.7671), Hei: 40}
	testStart = *m.NewGTime(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
)

var testSky = []struct {
	sat    m.SatType
	az, el float64
}{
	{"G01", 10, 80},
	{"G02", 60, 45},
	{"G03", 120, 30},
	{"G04", 180, 55},
	{"G05", 240, 28},
	{"G06", 300, 40},
	{"G07", 30, 25},
	{"G08", 210, 65},
}

// Exact pseudoranges of a static receiver with precomputed satellite states
func testDump(n int) *sessionDump {
	rr := testLLH.ToXYZ()
	d := &sessionDump{}
	for i := range n {
		t := testStart.Add(float64(i))
		e := &m.ObsE{Time: t, DatS: map[m.SatType]*m.ObsS{}}
		for k, s := range testSky {
			los := m.AzElToENU(m.ToRad(s.az), m.ToRad(s.el)).Unrotate(testLLH)
			st := m.SatState{Pos: rr.Add(los.Scale(2.2e7)), Clk: 1e-5 * float64(k+1)}
			r, _ := m.GeoDist(st.Pos, rr)
			o := &m.ObsS{}
			o.Freq[0] = m.L1
			o.Pr[0] = r + m.C*1e-4 - m.C*st.Clk
			o.Sn[0] = 45
			e.DatS[s.sat] = o
			d.States = append(d.States, stateEntry{Time: t, Sat: s.sat, SatState: st})
		}
		d.Rover = append(d.Rover, e)
	}
	return d
}

func writeDump(t *testing.T, d *sessionDump) string {
	t.Helper()
	b, err := json.Marshal(d)
	require.NoError(t, err)
	fn := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(fn, b, 0644))
	return fn
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeDump(t, testDump(5))
	posFn := filepath.Join(dir, "out.pos")
	geoFn := filepath.Join(dir, "out.geojson")
	traceFn := filepath.Join(dir, "trace.log")

	_, stderr, err := execute(t, "run", "--iono", "off", "--trop", "off",
		"-o", posFn, "--geojson", geoFn, "--trace", traceFn, "--log-level", "debug", in)
	require.NoError(t, err)
	assert.Contains(t, stderr, "solutions=5")

	// pos file
	b, err := os.ReadFile(posFn)
	require.NoError(t, err)
	var header, lines []string
	for _, l := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		if strings.HasPrefix(l, "%") {
			header = append(header, l)
		} else {
			lines = append(lines, l)
		}
	}
	assert.Contains(t, header[0], "% program   : gopos")
	assert.Contains(t, strings.Join(header, "\n"), "2025/04/01 00:00:00.000(UTC)")
	require.Len(t, lines, 5)
	for _, l := range lines {
		f := strings.Fields(l)
		require.Len(t, f, 15)
		lat, err := strconv.ParseFloat(f[2], 64)
		require.NoError(t, err)
		hei, err := strconv.ParseFloat(f[4], 64)
		require.NoError(t, err)
		assert.InDelta(t, 35.6812, lat, 1e-8)
		assert.InDelta(t, 40.0, hei, 1e-3)
		assert.Equal(t, "5", f[5])
		assert.Equal(t, "8", f[6])
	}
	assert.True(t, strings.HasPrefix(lines[1], "2025/04/01 00:00:01.000"))

	// GeoJSON
	b, err = os.ReadFile(geoFn)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(b)
	require.NoError(t, err)
	require.Len(t, fc.Features, 6)
	pt, ok := fc.Features[0].Geometry.(orb.Point)
	require.True(t, ok)
	assert.InDelta(t, 139.7671, pt.Lon(), 1e-8)
	ls, ok := fc.Features[5].Geometry.(orb.LineString)
	require.True(t, ok)
	assert.Len(t, ls, 5)
	assert.InDelta(t, 4.0, fc.Features[5].Properties["Duration"], 1e-6)

	// Trace log
	b, err = os.ReadFile(traceFn)
	require.NoError(t, err)
	assert.Contains(t, string(b), "session opened")
}

func TestRunCommandStdout(t *testing.T) {
	in := writeDump(t, testDump(3))
	stdout, _, err := execute(t, "run", "--nh", "--iono", "off", "--trop", "off", "--soltype", "combined", in)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.False(t, strings.HasPrefix(lines[0], "%"))
}

func TestRunCommandErrors(t *testing.T) {
	_, _, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, _, err = execute(t, "run")
	assert.Error(t, err)

	in := writeDump(t, &sessionDump{})
	_, _, err = execute(t, "run", in)
	assert.ErrorIs(t, err, m.ErrNoRoverData)
}

func TestOptionsCommand(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "opt.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("elmask: 10\nnavsys: G,E\nraim: false\n"), 0644))

	stdout, _, err := execute(t, "options", "-c", cfg, "--elmask", "20")
	require.NoError(t, err)
	opt, err := m.LoadProcOpt(strings.NewReader(stdout))
	require.NoError(t, err)
	assert.Equal(t, 20.0, opt.ElMask)
	assert.Equal(t, m.SysVar{'G', 'E'}, opt.NavSys)
	assert.False(t, opt.RAIM)
}

func TestOptionsReferencePosition(t *testing.T) {
	stdout, _, err := execute(t, "options", "-p", "dgps", "-l", "35.0 139.0 50")
	require.NoError(t, err)
	opt, err := m.LoadProcOpt(strings.NewReader(stdout))
	require.NoError(t, err)
	assert.Equal(t, m.DGPS, opt.Mode)
	assert.Equal(t, m.RefFixed, opt.RefPos)

	want := m.PosLLH{Lat: m.ToRad(35), Lon: m.ToRad(139), Hei: 50}.ToXYZ()
	assert.InDelta(t, 0, want.Sub(opt.RefXYZ).Norm(), 1e-6)
}

func TestOptionsInvalid(t *testing.T) {
	_, _, err := execute(t, "options", "--elmask", "95")
	assert.ErrorIs(t, err, m.ErrInvalidOption)

	_, _, err = execute(t, "options", "-p", "dgps")
	assert.ErrorIs(t, err, m.ErrInvalidOption)

	_, _, err = execute(t, "options", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDecodeSession(t *testing.T) {
	t.Run("states", func(t *testing.T) {
		b, err := json.Marshal(testDump(2))
		require.NoError(t, err)
		in, err := decodeSession(bytes.NewReader(b))
		require.NoError(t, err)
		assert.Len(t, in.rover.DatE, 2)
		assert.Nil(t, in.base)
		assert.IsType(t, &m.StateTable{}, in.prv.Eph)
		assert.Nil(t, in.prv.Bias)
	})

	t.Run("nav", func(t *testing.T) {
		js := `{"rover":[{"time":{"week":2360,"sec":172800},"sats":{"G01":{"pr":[2.2e7,0,0,0],"freq":[1575420000,0,0,0]},"G02":null}}],
			"nav":[{"Sat":"G01","Toe":{"week":2360,"sec":172800},"SqrtA":5153.6}],
			"ion":[1,2,3,4,5,6,7,8],"humi":0.5}`
		in, err := decodeSession(strings.NewReader(js))
		require.NoError(t, err)
		assert.IsType(t, &m.BroadcastEphemeris{}, in.prv.Eph)
		assert.IsType(t, &m.TGDBias{}, in.prv.Bias)
		assert.Len(t, in.rover.DatE[0].DatS, 1)

		corr := in.prv.Corr.(*m.ModelCorrections)
		assert.Equal(t, [8]float64{1, 2, 3, 4, 5, 6, 7, 8}, corr.Ion)
		assert.Equal(t, 0.5, corr.Humi)
	})

	tests := []struct {
		name string
		js   string
	}{
		{"no rover", `{"rover":[]}`},
		{"no ephemeris", `{"rover":[{"time":{"week":2360,"sec":0},"sats":{"G01":{}}}]}`},
		{"ion", `{"rover":[{"time":{"week":2360,"sec":0},"sats":{"G01":{}}}],"states":[{"sat":"G01"}],"ion":[1,2]}`},
		{"unknown field", `{"rover":[],"obs":[]}`},
		{"syntax", `{"rover":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeSession(strings.NewReader(tt.js))
			assert.Error(t, err)
		})
	}
}

func TestPrintPos(t *testing.T) {
	sol := &m.Solution{
		Time:    testStart.Add(1.0004),
		Pos:     testLLH.ToXYZ(),
		Dtr:     [4]float64{1e-4, 0, 0, 0},
		Ns:      7,
		Dop:     [4]float64{2.5, 2.0, 1.2, 1.6},
		Quality: m.QualityDGPS,
		Age:     1.5,
	}

	var buf bytes.Buffer
	printPos(&buf, m.DGPS, sol)
	f := strings.Fields(buf.String())
	require.Len(t, f, 15)
	assert.Equal(t, "00:00:01.000", f[1])
	assert.Equal(t, "4", f[5])
	assert.Equal(t, "7", f[6])
	assert.Equal(t, strconv.FormatFloat(1e-4*m.C, 'f', 4, 64), f[7])
	assert.Equal(t, "1.500", f[13])

	buf.Reset()
	printPos(&buf, m.SPP, sol)
	assert.Equal(t, "1.200", strings.Fields(buf.String())[13])
}

func TestTrajectory(t *testing.T) {
	seq := m.NewSolutionSequence(1)
	require.NoError(t, seq.Append(m.Solution{Time: testStart, Pos: testLLH.ToXYZ(), Exclude: "G03"}, m.PosXYZ{}))

	fc := trajectory("id", seq)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "G03", fc.Features[0].Properties["Exclude"])

	fc = trajectory("id", m.NewSolutionSequence(0))
	assert.Empty(t, fc.Features)
}
