package cper

// Severity is the error severity carried by status blocks and sections.
type Severity uint32

const (
	SevRecoverable Severity = 0
	SevFatal       Severity = 1
	SevCorrected   Severity = 2
	SevInfo        Severity = 3
)

var severityStrs = [...]string{
	"recoverable",
	"fatal",
	"corrected",
	"info",
}

func (s Severity) String() string {
	return lookup(severityStrs[:], uint64(s))
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var procTypeStrs = [...]string{
	"IA32/X64",
	"IA64",
}

var procISAStrs = [...]string{
	"IA32",
	"IA64",
	"X64",
}

// ProcErrorTypeStrs names the processor error_type bits.
var ProcErrorTypeStrs = []string{
	"cache error",
	"TLB error",
	"bus error",
	"micro-architectural error",
}

var procOpStrs = [...]string{
	"unknown or generic",
	"data read",
	"data write",
	"instruction execution",
}

// ProcFlagStrs names the processor flags bits.
var ProcFlagStrs = []string{
	"restartable",
	"precise IP",
	"overflow",
	"corrected",
}

var memErrTypeStrs = [...]string{
	"unknown",
	"no error",
	"single-bit ECC",
	"multi-bit ECC",
	"single-symbol chipkill ECC",
	"multi-symbol chipkill ECC",
	"master abort",
	"target abort",
	"parity error",
	"watchdog timeout",
	"invalid address",
	"mirror Broken",
	"memory sparing",
	"scrub corrected error",
	"scrub uncorrected error",
	"physical memory map-out event",
}

var pciePortTypeStrs = [...]string{
	"PCIe end point",
	"legacy PCI end point",
	"unknown",
	"unknown",
	"root port",
	"upstream switch port",
	"downstream switch port",
	"PCIe to PCI/PCI-X bridge",
	"PCI/PCI-X to PCIe bridge",
	"root complex integrated endpoint device",
	"root complex event collector",
}

// lookup indexes a fixed string table, returning "unknown" past its end.
func lookup(table []string, idx uint64) string {
	if idx >= uint64(len(table)) {
		return "unknown"
	}
	return table[idx]
}
