package archive

import (
	"fmt"
	"hash/crc32"
	"os"
)

// RegionReport is the validation outcome for one region.
type RegionReport struct {
	Kind      RegionKind
	Size      uint64
	StoredCRC uint32
	ActualCRC uint32
	OK        bool
}

// Report summarizes archive validation. An archive with any failing gate
// is unusable as a whole; the report just says which gate it was.
type Report struct {
	Path          string
	HeaderOK      bool
	Static        bool
	RequestedBase uint64
	Regions       []RegionReport
}

// Validate checks an archive without decoding it: the header checksum
// first, then every region checksum. The returned error carries the first
// failing gate; the report covers everything that could be checked.
func Validate(path string) (*Report, error) {
	rep := &Report{Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return rep, fmt.Errorf("reading archive: %w", err)
	}
	h, err := decodeHeader(data)
	if err != nil {
		return rep, err
	}
	rep.HeaderOK = true
	rep.Static = h.Static()
	rep.RequestedBase = h.RequestedBase

	var firstErr error
	for i := range h.Regions {
		d := &h.Regions[i]
		rr := RegionReport{Kind: d.Kind, Size: d.Size, StoredCRC: d.CRC}
		if d.FileOffset+d.Size > uint64(len(data)) {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %s region extends past end of file", ErrBadRegion, d.Kind)
			}
		} else {
			rr.ActualCRC = crc32.ChecksumIEEE(data[d.FileOffset : d.FileOffset+d.Size])
			rr.OK = rr.ActualCRC == rr.StoredCRC
			if !rr.OK && firstErr == nil {
				firstErr = fmt.Errorf("%w: %s region checksum %#x, stored %#x",
					ErrBadRegion, d.Kind, rr.ActualCRC, rr.StoredCRC)
			}
		}
		rep.Regions = append(rep.Regions, rr)
	}
	return rep, firstErr
}
