package cper

import "fmt"

// Record is a status block that passed Check. It holds a view of exactly the
// header and the declared section list.
type Record struct {
	buf      []byte
	status   StatusBlock
	sections int
}

// Status returns the decoded status block header.
func (r *Record) Status() StatusBlock {
	return r.status
}

// NumSections returns the number of section descriptors without decoding
// their payloads.
func (r *Record) NumSections() int {
	return r.sections
}

// Bytes returns the validated header and section list. The slice aliases the
// buffer given to Check.
func (r *Record) Bytes() []byte {
	return r.buf
}

// CheckHeader verifies the status block header invariants. It does not look
// at the section list.
func CheckHeader(blob []byte) error {
	hdr, err := ParseStatusBlock(blob)
	if err != nil {
		return fmt.Errorf("status block is %d bytes, need %d: %w", len(blob), StatusBlockSize, err)
	}
	return checkStatus(hdr)
}

func checkStatus(hdr StatusBlock) error {
	if hdr.DataLength != 0 && hdr.DataLength < SectionHeaderSize {
		return fmt.Errorf("data_length %d shorter than a section header: %w", hdr.DataLength, ErrMalformed)
	}
	end := uint64(StatusBlockSize) + uint64(hdr.DataLength)
	if hdr.RawDataLength != 0 && uint64(hdr.RawDataOffset) < end {
		return fmt.Errorf("raw_data_offset %d overlaps section data ending at %d: %w",
			hdr.RawDataOffset, end, ErrMalformed)
	}
	return nil
}

// Check validates blob as a complete status block: the header invariants
// hold and the section descriptors exactly fill data_length. Payloads are
// not decoded.
func Check(blob []byte) (*Record, error) {
	if err := CheckHeader(blob); err != nil {
		return nil, err
	}
	hdr, _ := ParseStatusBlock(blob)
	end := uint64(StatusBlockSize) + uint64(hdr.DataLength)
	if uint64(len(blob)) < end {
		return nil, fmt.Errorf("blob is %d bytes, section list ends at %d: %w", len(blob), end, ErrTruncated)
	}
	buf := blob[:end]
	n := 0
	if err := walk(buf, func(int, int, SectionHeader) { n++ }); err != nil {
		return nil, err
	}
	return &Record{buf: buf, status: hdr, sections: n}, nil
}

// walk visits every section descriptor in buf, which must hold the status
// block header followed by exactly data_length bytes. fn receives the index,
// the payload offset and the decoded header.
func walk(buf []byte, fn func(idx, off int, hdr SectionHeader)) error {
	off := StatusBlockSize
	remain := len(buf) - StatusBlockSize
	for idx := 0; remain >= SectionHeaderSize; idx++ {
		hdr := parseSectionHeader(buf[off:])
		if uint64(hdr.ErrorDataLength) > uint64(remain-SectionHeaderSize) {
			return fmt.Errorf("section %d at offset %d claims %d bytes, %d remain: %w",
				idx, off, hdr.ErrorDataLength, remain-SectionHeaderSize, ErrTruncated)
		}
		fn(idx, off+SectionHeaderSize, hdr)
		n := SectionHeaderSize + int(hdr.ErrorDataLength)
		off += n
		remain -= n
	}
	if remain != 0 {
		return fmt.Errorf("%d trailing bytes at offset %d: %w", remain, off, ErrTruncated)
	}
	return nil
}
