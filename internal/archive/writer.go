package archive

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
)

// write assembles the final file image and publishes it with a rename, so
// a crash mid-write never leaves a truncated archive at the target path.
func (b *Builder) write(regions [][]byte) error {
	if err := b.advance(PhaseWrite); err != nil {
		return err
	}

	h := &Header{
		MagicWord:     Magic,
		Version:       Version,
		RequestedBase: b.cfg.RequestedBase,
		RequestedTop:  b.regionBase[RegionRO] + alignTo(b.regions[RegionRO].capacity, regionAlign),
		RootsAddr:     b.requestedAddr(b.rootsInfo),
	}
	if b.cfg.Static {
		h.Flags |= flagStatic
	} else {
		h.BaseHeaderCRC = b.cfg.Base.HeaderCRC()
	}

	fileOff := alignTo(headerSize, regionAlign)
	for k := range regions {
		h.Regions[k] = RegionDesc{
			Kind:          RegionKind(k),
			FileOffset:    fileOff,
			Size:          uint64(len(regions[k])),
			RequestedBase: b.regionBase[k],
			CRC:           crc32.ChecksumIEEE(regions[k]),
		}
		fileOff += alignTo(uint64(len(regions[k])), regionAlign)
	}

	return writeFile(b.cfg.Path, h, regions)
}

func writeFile(path string, h *Header, regions [][]byte) error {
	total := h.Regions[len(regions)-1].FileOffset + uint64(len(regions[len(regions)-1]))
	out := make([]byte, total)
	copy(out, h.encode())
	for i := range regions {
		copy(out[h.Regions[i].FileOffset:], regions[i])
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("publishing archive: %w", err)
	}
	return nil
}
