// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	m "github.com/mkhts/gopos"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	if err := NewCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gopos: %s\n", err)
		os.Exit(1)
	}
}

// Structure to hold command line argument information
type cmdOpt struct {
	cfgFn       string     // Options file (YAML)
	inFn        string     // Session dump (JSON)
	posFn       string     // Output pos file ("": stdout)
	geoFn       string     // Output GeoJSON file ("": none)
	traceFn     string     // Trace log file ("": stderr)
	noPosHeader bool       // Do not output the header of the pos file
	refLLH      m.PosLLH   // Reference position given by -l
	flagOpt     *m.ProcOpt // Values bound to the option flags
	opt         *m.ProcOpt // Effective options (file + flags)
	cmdName     string
}

// NewCmd builds the gopos command tree
func NewCmd() *cobra.Command {
	a := &cmdOpt{flagOpt: m.NewProcOpt()}

	rootCmd := &cobra.Command{
		Use:           "gopos [command] [flags] [args]",
		Short:         "gopos computes single point and DGPS solutions of a GNSS session",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opt, err := resolveOptions(a, cmd.Flags())
			if err != nil {
				return err
			}
			a.opt = opt
			a.cmdName = cmd.Root().Name()
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}
	bindOptionFlags(rootCmd.PersistentFlags(), a)

	runCmd := &cobra.Command{
		Use:   "run [flags] <session.json>",
		Short: "Process a session dump and write the solutions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.inFn = args[0]
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runApplication(ctx, a, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	runCmd.Flags().StringVarP(&a.posFn, "out", "o", "", "Output pos file path. If not specified, output to stdout.")
	runCmd.Flags().StringVar(&a.geoFn, "geojson", "", "Output trajectory as GeoJSON to this path")
	runCmd.Flags().StringVar(&a.traceFn, "trace", "", "Write the log to this file (rotated) instead of stderr")
	runCmd.Flags().BoolVar(&a.noPosHeader, "nh", false, "Do not output header section of pos file.")

	optionsCmd := &cobra.Command{
		Use:   "options [flags]",
		Short: "Print the effective options as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.opt.WriteYAML(cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(runCmd, optionsCmd)
	return rootCmd
}

// Option flags. Names follow the options file where no short form exists.
func bindOptionFlags(fs *pflag.FlagSet, a *cmdOpt) {
	o := a.flagOpt
	fs.StringVarP(&a.cfgFn, "config", "c", "", "Options file (YAML). Flags override its values.")
	fs.VarP(&o.Mode, "mode", "p", "Calculation mode. 0(SPP), 1(DGPS)")
	fs.StringVar((*string)(&o.SolType), "soltype", string(o.SolType), "Solution type. forward, backward or combined")
	fs.Var(&o.NavSys, "sys", "Satellite systems to use for calculation. G(GPS), J(QZSS), E(Galileo), R(Glonass), C(Beidou). Comma-separated without spaces.")
	fs.Var(&o.ExSats, "ex", "List of satellites to exclude. Comma-separated satellite names without spaces like C02,E14.")
	fs.Float64VarP(&o.ElMask, "elmask", "m", o.ElMask, "Elevation mask [deg]. Set to 0 for no mask.")
	fs.Float64Var(&o.CnMask, "cn", o.CnMask, "Signal strength mask [dB-Hz]. Set to 0 for no mask.")
	fs.StringVar((*string)(&o.IonoOpt), "iono", string(o.IonoOpt), "Ionosphere correction. off, brdc or iflc")
	fs.StringVar((*string)(&o.TropOpt), "trop", string(o.TropOpt), "Troposphere correction. off or saas")
	fs.Float64VarP(&o.MaxGDOP, "maxgdop", "d", o.MaxGDOP, "Reject solutions whose GDOP exceeds this value")
	fs.BoolVar(&o.NoChiTest, "nx2", o.NoChiTest, "Do not reject solutions by the chi-square test")
	fs.BoolVar(&o.RAIM, "raim", o.RAIM, "Exclude one faulty satellite when the solution fails validation")
	fs.BoolVar(&o.AdaptiveWeight, "adaptive", o.AdaptiveWeight, "Inflate variances of outlying residuals")
	fs.StringVar((*string)(&o.RefPos), "refpos", string(o.RefPos), "Reference position of the base. none, fixed or average")
	fs.VarP(&a.refLLH, "llh", "l", "Base station latitude/longitude/ellipsoidal height. Enclose in quotes like -l \"35.73101206 139.7396917 80.33\"")
	fs.Float64Var(&o.MaxAge, "maxage", o.MaxAge, "Maximum age of base observations [s]")
	fs.Var(&o.StartTime, "ts", "Start epoch specification. Enclose in quotes like --ts \"2023/01/01 00:00:00\"")
	fs.Var(&o.EndTime, "te", "End epoch specification. This epoch is also included.")
	fs.IntVar(&o.Interval, "ti", o.Interval, "Calculation interval. Epochs whose second is divisible by this value are processed. 0 for all epochs.")
	fs.StringVar(&o.Log.Level, "log-level", o.Log.Level, "Log level. trace, debug, info, warn or error")
	fs.StringVar(&o.Log.Format, "log-format", o.Log.Format, "Log format. text or json")
}

// Copy a changed flag into the effective options
var overrides = map[string]func(dst, src *m.ProcOpt){
	"mode":       func(d, s *m.ProcOpt) { d.Mode = s.Mode },
	"soltype":    func(d, s *m.ProcOpt) { d.SolType = s.SolType },
	"sys":        func(d, s *m.ProcOpt) { d.NavSys = s.NavSys },
	"ex":         func(d, s *m.ProcOpt) { d.ExSats = s.ExSats },
	"elmask":     func(d, s *m.ProcOpt) { d.ElMask = s.ElMask },
	"cn":         func(d, s *m.ProcOpt) { d.CnMask = s.CnMask },
	"iono":       func(d, s *m.ProcOpt) { d.IonoOpt = s.IonoOpt },
	"trop":       func(d, s *m.ProcOpt) { d.TropOpt = s.TropOpt },
	"maxgdop":    func(d, s *m.ProcOpt) { d.MaxGDOP = s.MaxGDOP },
	"nx2":        func(d, s *m.ProcOpt) { d.NoChiTest = s.NoChiTest },
	"raim":       func(d, s *m.ProcOpt) { d.RAIM = s.RAIM },
	"adaptive":   func(d, s *m.ProcOpt) { d.AdaptiveWeight = s.AdaptiveWeight },
	"refpos":     func(d, s *m.ProcOpt) { d.RefPos = s.RefPos },
	"maxage":     func(d, s *m.ProcOpt) { d.MaxAge = s.MaxAge },
	"ts":         func(d, s *m.ProcOpt) { d.StartTime = s.StartTime },
	"te":         func(d, s *m.ProcOpt) { d.EndTime = s.EndTime },
	"ti":         func(d, s *m.ProcOpt) { d.Interval = s.Interval },
	"log-level":  func(d, s *m.ProcOpt) { d.Log.Level = s.Log.Level },
	"log-format": func(d, s *m.ProcOpt) { d.Log.Format = s.Log.Format },
}

// Options from the file (or defaults) overridden by the flags given
func resolveOptions(a *cmdOpt, fs *pflag.FlagSet) (*m.ProcOpt, error) {
	opt := m.NewProcOpt()
	if a.cfgFn != "" {
		f, err := os.Open(a.cfgFn)
		if err != nil {
			return nil, fmt.Errorf("failed to open options file: %w", err)
		}
		defer f.Close()
		opt, err = m.LoadProcOpt(f)
		if err != nil {
			return nil, fmt.Errorf("failed to load options file: %w", err)
		}
	}
	fs.Visit(func(f *pflag.Flag) {
		if set, ok := overrides[f.Name]; ok {
			set(opt, a.flagOpt)
		}
	})

	// -l gives a fixed reference position
	if fs.Changed("llh") {
		opt.RefXYZ = a.refLLH.ToXYZ()
		if !fs.Changed("refpos") {
			opt.RefPos = m.RefFixed
		}
	}
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	return opt, nil
}

// Main application processing
func runApplication(ctx context.Context, a *cmdOpt, stdout, stderr io.Writer) error {

	// Logger
	closeLog := setupLogger(a, stderr)
	defer closeLog()

	// Load input file
	in, err := readSession(a.inFn)
	if err != nil {
		return fmt.Errorf("failed to load input file: %w", err)
	}

	sess, err := m.OpenSession(in.rover, in.base, in.prv, a.opt)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer sess.Close()

	// A partial sequence is still written when processing is aborted
	seq, perr := sess.Process(ctx)
	if seq == nil {
		return fmt.Errorf("processing failed: %w", perr)
	}

	// Prepare output file
	pos, err := prepareOutput(a.posFn, stdout)
	if err != nil {
		return fmt.Errorf("failed to prepare output: %w", err)
	}
	defer closeOutput(pos)

	// Print header
	if !a.noPosHeader {
		printPosHeader(pos, a, sess, seq)
	}
	for i := range seq.Sols {
		printPos(pos, a.opt.Mode, &seq.Sols[i])
	}

	if a.geoFn != "" {
		if err := writeGeoJSON(a.geoFn, sess.ID, seq); err != nil {
			return fmt.Errorf("failed to write geojson: %w", err)
		}
	}

	sum := m.Summarize(seq)
	fmt.Fprintf(stderr, "%% %s\n", sum)

	if perr != nil {
		return fmt.Errorf("processing aborted: %w", perr)
	}
	return nil
}
