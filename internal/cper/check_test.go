package cper_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/cpergate/internal/cper"
	"example.com/cpergate/internal/cper/cpertest"
)

func memSection(sev cper.Severity) cpertest.Section {
	return cpertest.Section{
		Type:     cper.SecPlatformMem,
		Severity: sev,
		Payload:  cpertest.Memory(cper.MemValidPA).U64(cpertest.MemPA, 0x1000),
	}
}

func TestCheckEmptySectionList(t *testing.T) {
	blob := cpertest.Record{Severity: cper.SevInfo}.Bytes()
	require.NoError(t, cper.CheckHeader(blob))

	rec, err := cper.Check(blob)
	require.NoError(t, err)
	require.Len(t, rec.Bytes(), cper.StatusBlockSize)
	require.Empty(t, rec.Sections())
	require.Zero(t, rec.NumSections())

	var lines cper.Lines
	sum := cper.Render(rec, "", &lines)
	require.Equal(t, 0, sum.Sections)
	require.Equal(t, []string{"event severity: info"}, lines.L)
}

func TestCheckHeader(t *testing.T) {
	tests := []struct {
		name string
		blob func() []byte
		err  error
	}{
		{
			name: "short buffer",
			blob: func() []byte { return make([]byte, cper.StatusBlockSize-1) },
			err:  cper.ErrMalformed,
		},
		{
			name: "data shorter than a section header",
			blob: func() []byte {
				b := cpertest.Record{}.Bytes()
				cpertest.SetDataLength(b, cper.SectionHeaderSize-1)
				return b
			},
			err: cper.ErrMalformed,
		},
		{
			name: "raw data overlaps sections",
			blob: func() []byte {
				return cpertest.Record{
					RawDataOffset: cper.StatusBlockSize,
					RawDataLength: 8,
					Sections:      []cpertest.Section{memSection(cper.SevCorrected)},
				}.Bytes()
			},
			err: cper.ErrMalformed,
		},
		{
			name: "raw data right after sections",
			blob: func() []byte {
				return cpertest.Record{
					RawDataOffset: cper.StatusBlockSize + cper.SectionHeaderSize + cpertest.MemorySize,
					RawDataLength: 8,
					Sections:      []cpertest.Section{memSection(cper.SevCorrected)},
				}.Bytes()
			},
		},
		{
			name: "raw offset ignored without raw data",
			blob: func() []byte {
				return cpertest.Record{Sections: []cpertest.Section{memSection(cper.SevCorrected)}}.Bytes()
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cper.CheckHeader(tt.blob())
			if tt.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestCheckHeaderDataLengthNoOverflow(t *testing.T) {
	b := cpertest.Record{RawDataOffset: 16, RawDataLength: 1}.Bytes()
	cpertest.SetDataLength(b, 0xFFFFFFF0)
	require.ErrorIs(t, cper.CheckHeader(b), cper.ErrMalformed)
}

func TestCheckSectionsFillDataLength(t *testing.T) {
	for n := 1; n <= 4; n++ {
		var secs []cpertest.Section
		for i := 0; i < n; i++ {
			secs = append(secs, memSection(cper.SevCorrected))
		}
		rec, err := cper.Check(cpertest.Record{Sections: secs}.Bytes())
		require.NoError(t, err)

		require.Equal(t, n, rec.NumSections())
		require.Len(t, rec.Sections(), n)

		var lines cper.Lines
		sum := cper.Render(rec, "", &lines)
		require.Equal(t, n, sum.Sections)
		require.Equal(t, n, sum.Memory)
	}
}

func TestCheckOversizedSection(t *testing.T) {
	for good := 0; good <= 2; good++ {
		secs := []cpertest.Section{}
		for i := 0; i <= good; i++ {
			secs = append(secs, memSection(cper.SevRecoverable))
		}
		blob := cpertest.Record{Sections: secs}.Bytes()
		off := cper.StatusBlockSize + good*(cper.SectionHeaderSize+cpertest.MemorySize)
		cpertest.SetErrorDataLength(blob, off, cpertest.MemorySize+1)

		_, err := cper.Check(blob)
		require.ErrorIs(t, err, cper.ErrTruncated, "after %d good sections", good)
	}
}

func TestCheckHugeErrorDataLength(t *testing.T) {
	blob := cpertest.Record{Sections: []cpertest.Section{memSection(cper.SevFatal)}}.Bytes()
	cpertest.SetErrorDataLength(blob, cper.StatusBlockSize, 0xFFFFFFFF)
	_, err := cper.Check(blob)
	require.ErrorIs(t, err, cper.ErrTruncated)
}

func TestCheckTrailingBytes(t *testing.T) {
	blob := cpertest.Record{Sections: []cpertest.Section{memSection(cper.SevFatal)}}.Bytes()
	cpertest.SetDataLength(blob, uint32(len(blob)-cper.StatusBlockSize+10))
	blob = append(blob, make([]byte, 10)...)

	require.NoError(t, cper.CheckHeader(blob))
	_, err := cper.Check(blob)
	require.ErrorIs(t, err, cper.ErrTruncated)
}

func TestCheckBufferShorterThanDataLength(t *testing.T) {
	blob := cpertest.Record{Sections: []cpertest.Section{memSection(cper.SevFatal)}}.Bytes()
	_, err := cper.Check(blob[:len(blob)-1])
	require.ErrorIs(t, err, cper.ErrTruncated)
}

func TestCheckKeepsDeclaredBytesOnly(t *testing.T) {
	blob := cpertest.Record{
		Severity:      cper.SevFatal,
		RawDataOffset: cper.StatusBlockSize + cper.SectionHeaderSize + cpertest.MemorySize,
		RawDataLength: 4,
		Sections:      []cpertest.Section{memSection(cper.SevFatal)},
	}.Bytes()
	want := len(blob)
	blob = append(blob, 0xde, 0xad, 0xbe, 0xef)

	rec, err := cper.Check(blob)
	require.NoError(t, err)
	require.Len(t, rec.Bytes(), want)
	require.Equal(t, uint32(4), rec.Status().RawDataLength)
	require.Equal(t, cper.SevFatal, rec.Status().Severity)
}
