package pipeline

import (
	"firestige.xyz/srv6nat/internal/dataplane"
	"firestige.xyz/srv6nat/internal/log"
)

// Builder provides a fluent interface for building pipelines.
// This is an alternative to using Config directly.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			Workers:   1,
			FrameSize: DefaultFrameSize,
		},
	}
}

// WithWorkers sets the number of worker contexts.
func (b *Builder) WithWorkers(n int) *Builder {
	b.config.Workers = n
	return b
}

// WithFrameSize sets the number of packets per frame.
func (b *Builder) WithFrameSize(n int) *Builder {
	b.config.FrameSize = n
	return b
}

// WithTrace marks the first n packets for tracing.
func (b *Builder) WithTrace(n int) *Builder {
	b.config.Trace = n
	return b
}

// WithClassifier sets the local SID lookup.
func (b *Builder) WithClassifier(c Classifier) *Builder {
	b.config.Classifier = c
	return b
}

// WithNode sets the End.NAT node.
func (b *Builder) WithNode(n *dataplane.Node) *Builder {
	b.config.Node = n
	return b
}

// WithLogger sets the pipeline logger.
func (b *Builder) WithLogger(l log.Logger) *Builder {
	b.config.Logger = l
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	return New(b.config)
}
