package cper

const memErrorSize = 80

// Memory error validation bits.
const (
	MemValidErrorStatus  = 0x00001
	MemValidPA           = 0x00002
	MemValidPAMask       = 0x00004
	MemValidNode         = 0x00008
	MemValidCard         = 0x00010
	MemValidModule       = 0x00020
	MemValidBank         = 0x00040
	MemValidDevice       = 0x00080
	MemValidRow          = 0x00100
	MemValidColumn       = 0x00200
	MemValidBitPosition  = 0x00400
	MemValidRequestorID  = 0x00800
	MemValidResponderID  = 0x01000
	MemValidTargetID     = 0x02000
	MemValidErrorType    = 0x04000
	MemValidRankNumber   = 0x08000
	MemValidCardHandle   = 0x10000
	MemValidModuleHandle = 0x20000
)

const (
	offMemErrorStatus = 8
	offMemPA          = 16
	offMemPAMask      = 24
	offMemNode        = 32
	offMemCard        = 34
	offMemModule      = 36
	offMemBank        = 38
	offMemDevice      = 40
	offMemRow         = 42
	offMemColumn      = 44
	offMemBitPos      = 46
	offMemRequestor   = 48
	offMemResponder   = 56
	offMemTarget      = 64
	offMemErrorType   = 72
	offMemRank        = 74
	offMemArrayHandle = 76
	offMemDevHandle   = 78
)

// DIMMResolver maps an SMBIOS memory device handle to its bank and device
// locators.
type DIMMResolver interface {
	MemDevName(handle uint16) (bank, device string, ok bool)
}

// MemoryError is the platform memory error section.
type MemoryError struct {
	ValidationBits uint64        `json:"validation_bits"`
	ErrorStatus    Field[uint64] `json:"error_status"`
	PhysAddr       Field[uint64] `json:"physical_address"`
	PhysAddrMask   Field[uint64] `json:"physical_address_mask"`
	Node           Field[uint16] `json:"node"`
	Card           Field[uint16] `json:"card"`
	Module         Field[uint16] `json:"module"`
	Bank           Field[uint16] `json:"bank"`
	Device         Field[uint16] `json:"device"`
	Row            Field[uint16] `json:"row"`
	Column         Field[uint16] `json:"column"`
	BitPos         Field[uint16] `json:"bit_position"`
	RequestorID    Field[uint64] `json:"requestor_id"`
	ResponderID    Field[uint64] `json:"responder_id"`
	TargetID       Field[uint64] `json:"target_id"`
	ErrorType      Field[uint8]  `json:"error_type"`
	Rank           Field[uint16] `json:"rank"`
	ArrayHandle    Field[uint16] `json:"mem_array_handle"`
	DevHandle      Field[uint16] `json:"mem_dev_handle"`
}

func decodeMemory(buf []byte) *MemoryError {
	p := payload{buf: buf, bits: le.Uint64(buf)}
	return &MemoryError{
		ValidationBits: p.bits,
		ErrorStatus:    p.u64(MemValidErrorStatus, offMemErrorStatus),
		PhysAddr:       p.u64(MemValidPA, offMemPA),
		PhysAddrMask:   p.u64(MemValidPAMask, offMemPAMask),
		Node:           p.u16(MemValidNode, offMemNode),
		Card:           p.u16(MemValidCard, offMemCard),
		Module:         p.u16(MemValidModule, offMemModule),
		Bank:           p.u16(MemValidBank, offMemBank),
		Device:         p.u16(MemValidDevice, offMemDevice),
		Row:            p.u16(MemValidRow, offMemRow),
		Column:         p.u16(MemValidColumn, offMemColumn),
		BitPos:         p.u16(MemValidBitPosition, offMemBitPos),
		RequestorID:    p.u64(MemValidRequestorID, offMemRequestor),
		ResponderID:    p.u64(MemValidResponderID, offMemResponder),
		TargetID:       p.u64(MemValidTargetID, offMemTarget),
		ErrorType:      p.u8(MemValidErrorType, offMemErrorType),
		Rank:           p.u16(MemValidRankNumber, offMemRank),
		ArrayHandle:    p.u16(MemValidCardHandle, offMemArrayHandle),
		DevHandle:      p.u16(MemValidModuleHandle, offMemDevHandle),
	}
}

func (*MemoryError) Kind() Kind { return KindMemory }

func (mem *MemoryError) render(p printer, _ SectionHeader) {
	hex64 := func(name string, f Field[uint64]) {
		if v, ok := f.Get(); ok {
			p.line("%s: 0x%016x", name, v)
		}
	}
	dec16 := func(name string, f Field[uint16]) {
		if v, ok := f.Get(); ok {
			p.line("%s: %d", name, v)
		}
	}
	hex64("error_status", mem.ErrorStatus)
	hex64("physical_address", mem.PhysAddr)
	hex64("physical_address_mask", mem.PhysAddrMask)
	dec16("node", mem.Node)
	dec16("card", mem.Card)
	dec16("module", mem.Module)
	dec16("rank", mem.Rank)
	dec16("bank", mem.Bank)
	dec16("device", mem.Device)
	dec16("row", mem.Row)
	dec16("column", mem.Column)
	dec16("bit_position", mem.BitPos)
	hex64("requestor_id", mem.RequestorID)
	hex64("responder_id", mem.ResponderID)
	hex64("target_id", mem.TargetID)
	if v, ok := mem.ErrorType.Get(); ok {
		p.line("error_type: %d, %s", v, lookup(memErrTypeStrs[:], uint64(v)))
	}
	if h, ok := mem.DevHandle.Get(); ok {
		if p.dimm != nil {
			if bank, dev, found := p.dimm.MemDevName(h); found {
				p.line("DIMM location: %s %s", bank, dev)
				return
			}
		}
		p.line("DIMM DMI handle: 0x%04x", h)
	}
}
