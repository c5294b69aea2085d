// Package metrics exports the End.NAT counters to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"firestige.xyz/srv6nat/internal/dataplane"
	"firestige.xyz/srv6nat/internal/localsid"
	"firestige.xyz/srv6nat/internal/pipeline"
)

const namespace = "srv6nat"

var (
	localSIDPacketsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "localsid", "packets_total"),
		"Packets processed by a local SID, by outcome",
		[]string{"sid", "index", "outcome"}, nil,
	)
	localSIDBytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "localsid", "bytes_total"),
		"Bytes processed by a local SID, by outcome",
		[]string{"sid", "index", "outcome"}, nil,
	)
	nodeCounterDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "node", "counter_total"),
		"Error counters of the End.NAT node",
		[]string{"node", "counter"}, nil,
	)
	pipelinePacketsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pipeline", "packets_total"),
		"Packets seen by the pipeline, by stage",
		[]string{"stage"}, nil,
	)
)

// SIDSource names segment indexes.
type SIDSource interface {
	Entry(index uint32) (localsid.Entry, bool)
}

// Collector reads the node counters at scrape time.
type Collector struct {
	node  *dataplane.Node
	sids  SIDSource
	stats func() pipeline.Stats
}

// NewCollector returns a collector over node. stats may be nil.
func NewCollector(node *dataplane.Node, sids SIDSource, stats func() pipeline.Stats) *Collector {
	return &Collector{node: node, sids: sids, stats: stats}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- localSIDPacketsDesc
	ch <- localSIDBytesDesc
	ch <- nodeCounterDesc
	if c.stats != nil {
		ch <- pipelinePacketsDesc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, sc := range c.node.Counters().Snapshot() {
		sid := "unknown"
		if e, ok := c.sids.Entry(sc.Index); ok {
			sid = e.Address.String()
		}
		index := strconv.FormatUint(uint64(sc.Index), 10)
		for _, o := range []struct {
			outcome string
			v       dataplane.Combined
		}{{"valid", sc.Valid}, {"invalid", sc.Invalid}} {
			ch <- prometheus.MustNewConstMetric(localSIDPacketsDesc, prometheus.CounterValue, float64(o.v.Packets), sid, index, o.outcome)
			ch <- prometheus.MustNewConstMetric(localSIDBytesDesc, prometheus.CounterValue, float64(o.v.Bytes), sid, index, o.outcome)
		}
	}

	for _, v := range c.node.Errors().Values() {
		ch <- prometheus.MustNewConstMetric(nodeCounterDesc, prometheus.CounterValue, float64(v.Value), dataplane.NodeName, v.Name)
	}

	if c.stats == nil {
		return
	}
	s := c.stats()
	for _, st := range []struct {
		stage string
		v     uint64
	}{
		{"received", s.Received},
		{"dispatched", s.Dispatched},
		{"bypassed", s.Bypassed},
		{"forwarded", s.Forwarded},
		{"dropped", s.Dropped},
	} {
		ch <- prometheus.MustNewConstMetric(pipelinePacketsDesc, prometheus.CounterValue, float64(st.v), st.stage)
	}
}

// NewRegistry returns a registry holding c plus the Go runtime and
// process collectors.
func NewRegistry(c *Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	for _, col := range []prometheus.Collector{
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// WriteTextfile writes every metric of g to path in the text exposition
// format, for pickup by a node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
