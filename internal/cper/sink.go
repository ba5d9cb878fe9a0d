package cper

import "example.com/cpergate/internal/common"

// LineSink receives rendered diagnostic lines, one call per line.
type LineSink interface {
	WriteLine(line string)
}

// LineFunc adapts a function to LineSink.
type LineFunc func(string)

func (f LineFunc) WriteLine(line string) { f(line) }

// Lines collects rendered lines in order.
type Lines struct {
	L []string
}

func (l *Lines) WriteLine(line string) {
	l.L = append(l.L, line)
}

// LogSink writes each line through the common logger.
func LogSink() LineSink {
	return LineFunc(func(line string) {
		common.Logf("%s", line)
	})
}
