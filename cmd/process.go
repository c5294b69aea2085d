package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/srv6nat/internal/config"
	"firestige.xyz/srv6nat/internal/dataplane"
	"firestige.xyz/srv6nat/internal/localsid"
	"firestige.xyz/srv6nat/internal/log"
	"firestige.xyz/srv6nat/internal/metrics"
	"firestige.xyz/srv6nat/internal/pipeline"
	"firestige.xyz/srv6nat/internal/source/pcapfile"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run End.NAT over a capture file",
	Long: `Read packets from a pcap or pcapng file, run every packet addressed to a
local SID through End.NAT and write the result.

Packets that continue to ip6-lookup are written to --out, packets sent to
error-drop to --drops. Packets not addressed to a local SID pass through to
--out unchanged.

Examples:
  srv6nat process -i in.pcap -o out.pcap --localsid "fc00::1 end.nat from 10.0.0.0 to 10.1.0.0"
  srv6nat process -c srv6nat.yml -i in.pcap -o out.pcap --drops drop.pcap --trace 10`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := runProcess(ctx, cmd, processOpts, os.Stdout); err != nil {
			exitWithError("process failed", err)
		}
	},
}

type processOptions struct {
	in        string
	out       string
	drops     string
	trace     int
	workers   int
	frameSize int
	localSIDs []string
	textfile  string
}

var processOpts processOptions

func init() {
	f := processCmd.Flags()
	f.StringVarP(&processOpts.in, "in", "i", "", "input capture file (required)")
	f.StringVarP(&processOpts.out, "out", "o", "", "capture file for forwarded packets")
	f.StringVar(&processOpts.drops, "drops", "", "capture file for dropped packets")
	f.IntVar(&processOpts.trace, "trace", 0, "trace the first N packets (overrides dataplane.trace)")
	f.IntVarP(&processOpts.workers, "workers", "w", 0, "worker count (overrides dataplane.workers)")
	f.IntVar(&processOpts.frameSize, "frame-size", 0, "packets per frame (overrides dataplane.frame_size)")
	f.StringArrayVar(&processOpts.localSIDs, "localsid", nil, `local SID "<ipv6> end.nat from <ip4> to <ip4>", repeatable`)
	f.StringVar(&processOpts.textfile, "metrics-textfile", "", "write Prometheus metrics here when done (overrides metrics.textfile)")
	processCmd.MarkFlagRequired("in")
}

// applyOverrides copies flags the user set onto the loaded configuration.
func (o processOptions) applyOverrides(cmd *cobra.Command, cfg *config.GlobalConfig) {
	if cmd == nil {
		return
	}
	flags := cmd.Flags()
	if flags.Changed("trace") {
		cfg.Dataplane.Trace = o.trace
	}
	if flags.Changed("workers") && o.workers > 0 {
		cfg.Dataplane.Workers = o.workers
	}
	if flags.Changed("frame-size") && o.frameSize > 0 {
		cfg.Dataplane.FrameSize = o.frameSize
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = o.textfile
	}
}

func runProcess(ctx context.Context, cmd *cobra.Command, opts processOptions, w io.Writer) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	opts.applyOverrides(cmd, cfg)
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger := log.GetLogger()

	counters := dataplane.NewCounters(cfg.Dataplane.Workers)
	_, tbl, err := buildTable(cfg, opts.localSIDs, localsid.WithCreateHook(func(e localsid.Entry) {
		counters.Clear(e.Index)
	}))
	if err != nil {
		return err
	}
	if tbl.Len() == 0 {
		logger.Warn("no local SIDs configured, every packet passes through unchanged")
	}

	traces := dataplane.NewTraceBuffer(cfg.Dataplane.Trace)
	node := dataplane.NewNode(tbl, counters, dataplane.WithTracer(traces))
	p, err := pipeline.NewBuilder().
		WithWorkers(cfg.Dataplane.Workers).
		WithFrameSize(cfg.Dataplane.FrameSize).
		WithTrace(cfg.Dataplane.Trace).
		WithClassifier(tbl).
		WithNode(node).
		Build()
	if err != nil {
		return err
	}

	reg, err := metrics.NewRegistry(metrics.NewCollector(node, tbl, p.Stats))
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, reg)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Stop(context.Background())
	}

	src, err := pcapfile.Open(opts.in)
	if err != nil {
		return err
	}
	defer src.Close()

	sink := &pcapfile.Sink{}
	if opts.out != "" {
		if sink.Forward, err = pcapfile.Create(opts.out, src.LinkType()); err != nil {
			return err
		}
		defer sink.Forward.Close()
	}
	if opts.drops != "" {
		if sink.Drop, err = pcapfile.Create(opts.drops, src.LinkType()); err != nil {
			return err
		}
		defer sink.Drop.Close()
	}

	runErr := p.Run(ctx, src, sink)

	for _, wr := range []*pcapfile.Writer{sink.Forward, sink.Drop} {
		if wr == nil {
			continue
		}
		if err := wr.Close(); err != nil && runErr == nil {
			runErr = fmt.Errorf("close capture: %w", err)
		}
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile, reg); err != nil {
			logger.WithError(err).Error("failed to write metrics textfile")
		}
	}

	printSummary(w, p.Stats(), tbl, node, traces)
	return runErr
}

func printSummary(w io.Writer, stats pipeline.Stats, tbl *localsid.Table, node *dataplane.Node, traces *dataplane.TraceBuffer) {
	fmt.Fprintf(w, "Packets: received %d, to %s %d, bypassed %d, forwarded %d, dropped %d\n",
		stats.Received, dataplane.NodeName, stats.Dispatched, stats.Bypassed, stats.Forwarded, stats.Dropped)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSID\tIndex\tValid packets\tValid bytes\tInvalid packets\tInvalid bytes")
	for _, e := range tbl.List() {
		sc := node.Counters().Get(e.Index)
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", e.Address, e.Index,
			sc.Valid.Packets, sc.Valid.Bytes, sc.Invalid.Packets, sc.Invalid.Bytes)
	}
	tw.Flush()

	fmt.Fprintln(w)
	for _, v := range node.Errors().Values() {
		fmt.Fprintf(w, "%12d  %s  %s\n", v.Value, dataplane.NodeName, v.Name)
	}

	if recs := traces.Records(); len(recs) > 0 {
		fmt.Fprintln(w)
		for _, r := range recs {
			fmt.Fprintf(w, "Packet %d\n  %s\n", r.Seq, r)
		}
	}
}
