package archive

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	// Magic spells "jarc" when the header is read as bytes.
	Magic   uint32 = 0x6372616a
	Version uint32 = 1

	// DefaultRequestedBase is where a static archive asks to be mapped.
	// A dynamic archive is laid out directly above its base archive.
	DefaultRequestedBase uint64 = 0x8_0000_0000

	regionAlign = 4096

	flagStatic uint32 = 1 << 0

	headerSize    = 120
	regionDescOff = 48
	regionDescLen = 32
	headerCRCOff  = 112
)

// RegionDesc locates one region in the file and in the requested address
// space, with a checksum over its payload.
type RegionDesc struct {
	Kind          RegionKind
	FileOffset    uint64
	Size          uint64
	RequestedBase uint64
	CRC           uint32
}

// Header is the fixed-size archive prologue. Its own checksum is the
// first validation gate: a header that fails it rejects the whole file
// before any region is looked at.
type Header struct {
	MagicWord     uint32
	Version       uint32
	Flags         uint32
	RequestedBase uint64
	RequestedTop  uint64
	RootsAddr     uint64
	BaseHeaderCRC uint32 // header checksum of the base archive, dynamic only
	Regions       [regionCount]RegionDesc
	CRC           uint32
}

func (h *Header) Static() bool { return h.Flags&flagStatic != 0 }

func (h *Header) encode() []byte {
	buf := make([]byte, headerSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], h.MagicWord)
	le.PutUint32(buf[4:], h.Version)
	le.PutUint32(buf[8:], h.Flags)
	le.PutUint64(buf[16:], h.RequestedBase)
	le.PutUint64(buf[24:], h.RequestedTop)
	le.PutUint64(buf[32:], h.RootsAddr)
	le.PutUint32(buf[40:], h.BaseHeaderCRC)
	for i := range h.Regions {
		r := &h.Regions[i]
		off := regionDescOff + i*regionDescLen
		buf[off] = byte(r.Kind)
		le.PutUint32(buf[off+4:], r.CRC)
		le.PutUint64(buf[off+8:], r.FileOffset)
		le.PutUint64(buf[off+16:], r.Size)
		le.PutUint64(buf[off+24:], r.RequestedBase)
	}
	// checksum covers everything before its own slot
	h.CRC = crc32.ChecksumIEEE(buf[:headerCRCOff])
	le.PutUint32(buf[headerCRCOff:], h.CRC)
	return buf
}

func decodeHeader(buf []byte) (*Header, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrBadHeader, len(buf), headerSize)
	}
	le := binary.LittleEndian
	h := &Header{
		MagicWord:     le.Uint32(buf[0:]),
		Version:       le.Uint32(buf[4:]),
		Flags:         le.Uint32(buf[8:]),
		RequestedBase: le.Uint64(buf[16:]),
		RequestedTop:  le.Uint64(buf[24:]),
		RootsAddr:     le.Uint64(buf[32:]),
		BaseHeaderCRC: le.Uint32(buf[40:]),
		CRC:           le.Uint32(buf[headerCRCOff:]),
	}
	if h.MagicWord != Magic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrBadHeader, h.MagicWord)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, h.Version)
	}
	if got := crc32.ChecksumIEEE(buf[:headerCRCOff]); got != h.CRC {
		return nil, fmt.Errorf("%w: checksum %#x, stored %#x", ErrBadHeader, got, h.CRC)
	}
	for i := range h.Regions {
		r := &h.Regions[i]
		off := regionDescOff + i*regionDescLen
		r.Kind = RegionKind(buf[off])
		r.CRC = le.Uint32(buf[off+4:])
		r.FileOffset = le.Uint64(buf[off+8:])
		r.Size = le.Uint64(buf[off+16:])
		r.RequestedBase = le.Uint64(buf[off+24:])
	}
	return h, nil
}
