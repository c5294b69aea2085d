package pcapfile

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/srv6nat/internal/dataplane"
)

// DefaultSnapLen is written to the file header of new captures.
const DefaultSnapLen = 65535

// Writer appends packets to a pcap file.
type Writer struct {
	mu    sync.Mutex
	file  *os.File
	buf   *bufio.Writer
	w     *pcapgo.Writer
	count uint64
}

// Create creates the capture at path with the given link type.
func Create(path string, lt layers.LinkType) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create pcap file %s: %w", path, err)
	}
	buf := bufio.NewWriter(f)
	w := pcapgo.NewWriter(buf)
	if err := w.WriteFileHeader(DefaultSnapLen, lt); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Writer{file: f, buf: buf, w: w}, nil
}

// Write appends the whole frame of p, link-layer header included.
func (w *Writer) Write(p *dataplane.Packet) error {
	wireLen := p.WireLen
	if wireLen < len(p.Buffer) {
		wireLen = len(p.Buffer)
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     p.Timestamp,
		CaptureLength: len(p.Buffer),
		Length:        wireLen,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.WritePacket(ci, p.Buffer); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of packets written.
func (w *Writer) Count() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes buffered packets and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	w.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Sink writes forwarded packets to one capture and dropped packets to an
// optional second one.
type Sink struct {
	Forward *Writer
	Drop    *Writer
}

// Deliver implements the pipeline sink.
func (s *Sink) Deliver(p *dataplane.Packet, next dataplane.Next) error {
	switch next {
	case dataplane.NextIP6Lookup:
		if s.Forward != nil {
			return s.Forward.Write(p)
		}
	case dataplane.NextErrorDrop:
		if s.Drop != nil {
			return s.Drop.Write(p)
		}
	}
	return nil
}
