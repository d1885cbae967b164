package fastd

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// BPFTap is a pcap writer standing in for a BPF tap on a cloned
// interface, fed every packet the core delivers to or accepts from the
// host stack. Captures use gopacket/pcapgo's DLT_NULL writer, since
// DLT_NULL's wire format matches BPF_MTAP2's: a 4-byte native-endian
// address family followed by the raw IP packet.
type BPFTap struct {
	mu sync.Mutex
	w  *pcapgo.Writer
	f  *os.File
}

// NewBPFTap creates (or truncates) a pcap capture file at path and writes
// its DLT_NULL global header.
func NewBPFTap(path string) (*BPFTap, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, layers.LinkTypeNull); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	return &BPFTap{w: w, f: f}, nil
}

// Tap implements TapFunc: it prepends the 4-byte address-family header
// BPF_MTAP2 would have attached and appends the frame to the capture.
func (t *BPFTap) Tap(af uint32, packet []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	frame := make([]byte, 4+len(packet))
	binary.LittleEndian.PutUint32(frame, af)
	copy(frame[4:], packet)

	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}

	// Capture errors are intentionally swallowed: a stalled disk must
	// never back-pressure the data plane.
	_ = t.w.WritePacket(ci, frame)
}

// Close flushes and closes the underlying capture file.
func (t *BPFTap) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.f.Close()
}
