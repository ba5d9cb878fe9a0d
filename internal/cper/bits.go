package cper

import "strings"

const lineWidth = 80

// FormatBits lists the names of the set bits of bits, packing them into lines
// no wider than 80 columns. Each line starts with prefix and names are joined
// by ", ". Empty names are skipped and so are bits past the end of names.
func FormatBits(prefix string, bits uint32, names []string) []string {
	n := len(names)
	if n > 32 {
		n = 32
	}
	var (
		out  []string
		line strings.Builder
	)
	for i := 0; i < n; i++ {
		if bits&(1<<uint(i)) == 0 || names[i] == "" {
			continue
		}
		name := names[i]
		if line.Len() > 0 && line.Len()+len(name)+2 > lineWidth {
			out = append(out, line.String())
			line.Reset()
		}
		if line.Len() == 0 {
			line.WriteString(prefix)
			line.WriteString(name)
		} else {
			line.WriteString(", ")
			line.WriteString(name)
		}
	}
	if line.Len() > 0 {
		out = append(out, line.String())
	}
	return out
}

// PrintBits writes the lines of FormatBits to sink.
func PrintBits(sink LineSink, prefix string, bits uint32, names []string) {
	for _, l := range FormatBits(prefix, bits, names) {
		sink.WriteLine(l)
	}
}
