package dump

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"example.com/cpergate/internal/cper"
)

// ErrShortBlock reports a status block cut off by the end of the dump.
var ErrShortBlock = errors.New("dump: short status block")

// Block is one status block inside a dump.
type Block struct {
	Offset int
	Data   []byte
}

// Load reads path and undoes its compression.
func Load(path string) ([]byte, Format, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, Raw, err
	}
	return Decode(raw, DefaultLimit)
}

// Split cuts data, a run of back to back status blocks, into blocks. A block
// covers its section list and its raw data, whichever ends later. Zero
// padding after the last block is ignored.
func Split(data []byte) ([]Block, error) {
	var blocks []Block
	end := len(bytes.TrimRight(data, "\x00"))
	off := 0
	for off < end {
		hdr, err := cper.ParseStatusBlock(data[off:])
		if err != nil {
			return blocks, fmt.Errorf("offset %d: %d bytes left: %w", off, len(data)-off, ErrShortBlock)
		}
		span := uint64(cper.StatusBlockSize) + uint64(hdr.DataLength)
		if hdr.RawDataLength != 0 {
			if rawEnd := uint64(hdr.RawDataOffset) + uint64(hdr.RawDataLength); rawEnd > span {
				span = rawEnd
			}
		}
		if span > uint64(len(data)-off) {
			return blocks, fmt.Errorf("offset %d: block needs %d bytes, %d left: %w",
				off, span, len(data)-off, ErrShortBlock)
		}
		blocks = append(blocks, Block{Offset: off, Data: data[off : off+int(span)]})
		off += int(span)
	}
	return blocks, nil
}
