// Package pcapfile reads packets from capture files into the pipeline and
// writes processed packets back out, using the pure Go pcap and pcapng
// codecs from gopacket.
package pcapfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/srv6nat/internal/dataplane"
)

const (
	ethernetHeaderLen = 14
	vlanTagLen        = 4
	etherTypeQinQ     = 0x88A8
	linuxSLLHeaderLen = 16
	pcapngMagic       = 0x0A0D0D0A
)

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Reader yields the packets of a pcap or pcapng file with the packet view
// positioned past the link-layer header.
type Reader struct {
	path     string
	file     *os.File
	r        packetReader
	linkType layers.LinkType
}

// Open opens the capture at path. The format is detected from the magic
// number.
func Open(path string) (*Reader, error) {
	if path == "" {
		return nil, fmt.Errorf("pcap path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap file %s: %w", path, err)
	}
	r.path = path
	r.file = f
	return r, nil
}

// NewReader reads a capture from r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}

	var pr packetReader
	if binary.BigEndian.Uint32(magic) == pcapngMagic {
		pr, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		pr, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, err
	}

	lt := pr.LinkType()
	if _, err := linkOffset(lt, nil); err != nil {
		return nil, err
	}
	return &Reader{r: pr, linkType: lt}, nil
}

// LinkType returns the link type of the capture.
func (r *Reader) LinkType() layers.LinkType { return r.linkType }

// Next returns the next packet, or io.EOF at the end of the capture.
func (r *Reader) Next() (*dataplane.Packet, error) {
	data, ci, err := r.r.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read packet: %w", err)
	}

	off, _ := linkOffset(r.linkType, data)
	return &dataplane.Packet{
		Buffer:    data,
		Offset:    off,
		Timestamp: ci.Timestamp,
		WireLen:   ci.Length,
	}, nil
}

// Close closes the underlying file when the reader was opened by path.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// linkOffset returns where the network header starts in a frame of link
// type lt. With a nil frame it only checks that lt is supported. A frame
// too short for its link header yields an offset at its end.
func linkOffset(lt layers.LinkType, frame []byte) (int, error) {
	off := 0
	switch lt {
	case layers.LinkTypeRaw, layers.LinkTypeIPv6:
	case layers.LinkTypeEthernet:
		off = ethernetHeaderLen
		// skip 802.1Q and QinQ tags
		for len(frame) >= off {
			et := binary.BigEndian.Uint16(frame[off-2 : off])
			if et != uint16(layers.EthernetTypeDot1Q) && et != etherTypeQinQ {
				break
			}
			off += vlanTagLen
		}
	case layers.LinkTypeLinuxSLL:
		off = linuxSLLHeaderLen
	default:
		return 0, fmt.Errorf("unsupported link type %s", lt)
	}
	if frame != nil && off > len(frame) {
		off = len(frame)
	}
	return off, nil
}
