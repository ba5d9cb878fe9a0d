package cper

const procGenericSize = 192

// Processor generic validation bits.
const (
	ProcValidType        = 0x0001
	ProcValidISA         = 0x0002
	ProcValidErrorType   = 0x0004
	ProcValidOperation   = 0x0008
	ProcValidFlags       = 0x0010
	ProcValidLevel       = 0x0020
	ProcValidVersion     = 0x0040
	ProcValidBrandInfo   = 0x0080
	ProcValidID          = 0x0100
	ProcValidTargetAddr  = 0x0200
	ProcValidRequestorID = 0x0400
	ProcValidResponderID = 0x0800
	ProcValidIP          = 0x1000
)

const (
	offProcType      = 8
	offProcISA       = 9
	offProcErrorType = 10
	offProcOperation = 11
	offProcFlags     = 12
	offProcLevel     = 13
	offProcVersion   = 16
	offProcBrand     = 24
	offProcID        = 152
	offProcTarget    = 160
	offProcRequestor = 168
	offProcResponder = 176
	offProcIP        = 184

	procBrandSize = 128
)

// ProcessorGeneric is the processor generic error section.
type ProcessorGeneric struct {
	ValidationBits uint64        `json:"validation_bits"`
	ProcType       Field[uint8]  `json:"processor_type"`
	ISA            Field[uint8]  `json:"processor_isa"`
	ErrorType      Field[uint8]  `json:"error_type"`
	Operation      Field[uint8]  `json:"operation"`
	Flags          Field[uint8]  `json:"flags"`
	Level          Field[uint8]  `json:"level"`
	Version        Field[uint64] `json:"version_info"`
	Brand          Field[string] `json:"brand"`
	ID             Field[uint64] `json:"processor_id"`
	TargetAddr     Field[uint64] `json:"target_address"`
	RequestorID    Field[uint64] `json:"requestor_id"`
	ResponderID    Field[uint64] `json:"responder_id"`
	IP             Field[uint64] `json:"ip"`
}

func decodeProcessor(buf []byte) *ProcessorGeneric {
	p := payload{buf: buf, bits: le.Uint64(buf)}
	proc := &ProcessorGeneric{
		ValidationBits: p.bits,
		ProcType:       p.u8(ProcValidType, offProcType),
		ISA:            p.u8(ProcValidISA, offProcISA),
		ErrorType:      p.u8(ProcValidErrorType, offProcErrorType),
		Operation:      p.u8(ProcValidOperation, offProcOperation),
		Flags:          p.u8(ProcValidFlags, offProcFlags),
		Level:          p.u8(ProcValidLevel, offProcLevel),
		Version:        p.u64(ProcValidVersion, offProcVersion),
		ID:             p.u64(ProcValidID, offProcID),
		TargetAddr:     p.u64(ProcValidTargetAddr, offProcTarget),
		RequestorID:    p.u64(ProcValidRequestorID, offProcRequestor),
		ResponderID:    p.u64(ProcValidResponderID, offProcResponder),
		IP:             p.u64(ProcValidIP, offProcIP),
	}
	if p.has(ProcValidBrandInfo) {
		proc.Brand = Some(cString(buf[offProcBrand : offProcBrand+procBrandSize]))
	}
	return proc
}

func (*ProcessorGeneric) Kind() Kind { return KindProcessor }

func (proc *ProcessorGeneric) render(p printer, _ SectionHeader) {
	if v, ok := proc.ProcType.Get(); ok {
		p.line("processor_type: %d, %s", v, lookup(procTypeStrs[:], uint64(v)))
	}
	if v, ok := proc.ISA.Get(); ok {
		p.line("processor_isa: %d, %s", v, lookup(procISAStrs[:], uint64(v)))
	}
	if v, ok := proc.ErrorType.Get(); ok {
		p.line("error_type: 0x%02x", v)
		p.bits(uint32(v), ProcErrorTypeStrs)
	}
	if v, ok := proc.Operation.Get(); ok {
		p.line("operation: %d, %s", v, lookup(procOpStrs[:], uint64(v)))
	}
	if v, ok := proc.Flags.Get(); ok {
		p.line("flags: 0x%02x", v)
		p.bits(uint32(v), ProcFlagStrs)
	}
	if v, ok := proc.Level.Get(); ok {
		p.line("level: %d", v)
	}
	if v, ok := proc.Version.Get(); ok {
		p.line("version_info: 0x%016x", v)
	}
	if v, ok := proc.ID.Get(); ok {
		p.line("processor_id: 0x%016x", v)
	}
	if v, ok := proc.TargetAddr.Get(); ok {
		p.line("target_address: 0x%016x", v)
	}
	if v, ok := proc.RequestorID.Get(); ok {
		p.line("requestor_id: 0x%016x", v)
	}
	if v, ok := proc.ResponderID.Get(); ok {
		p.line("responder_id: 0x%016x", v)
	}
	if v, ok := proc.IP.Get(); ok {
		p.line("IP: 0x%016x", v)
	}
}
