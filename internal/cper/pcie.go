package cper

const pcieErrorSize = 208

// PCIe error validation bits.
const (
	PCIeValidPortType      = 0x01
	PCIeValidVersion       = 0x02
	PCIeValidCommandStatus = 0x04
	PCIeValidDeviceID      = 0x08
	PCIeValidSerialNumber  = 0x10
	PCIeValidBridgeControl = 0x20
	PCIeValidCapability    = 0x40
	PCIeValidAERInfo       = 0x80
)

const (
	offPCIePortType     = 8
	offPCIeVersionMinor = 12
	offPCIeVersionMajor = 13
	offPCIeCommand      = 16
	offPCIeStatus       = 18
	offPCIeVendorID     = 24
	offPCIeDeviceID     = 26
	offPCIeClassCode    = 28
	offPCIeFunction     = 31
	offPCIeDevice       = 32
	offPCIeSegment      = 33
	offPCIeBus          = 35
	offPCIeSecondaryBus = 36
	offPCIeSlot         = 37
	offPCIeSerialLower  = 40
	offPCIeSerialUpper  = 44
	offPCIeBridgeStatus = 48
	offPCIeBridgeCtrl   = 50
	offPCIeCapability   = 52
	offPCIeAER          = 112

	pcieCapabilitySize = 60
	pcieAERSize        = 96
	pcieSlotShift      = 3
)

// Offsets inside the AER capability block.
const (
	offAERUncorStatus   = 4
	offAERUncorMask     = 8
	offAERUncorSeverity = 12
	offAERHeaderLog     = 28
)

// PCIeVersion is the PCI Express capability version.
type PCIeVersion struct {
	Major uint8 `json:"major"`
	Minor uint8 `json:"minor"`
}

// PCIeDeviceID locates the device that reported the error.
type PCIeDeviceID struct {
	VendorID     uint16   `json:"vendor_id"`
	DeviceID     uint16   `json:"device_id"`
	ClassCode    [3]uint8 `json:"class_code"`
	Function     uint8    `json:"function"`
	Device       uint8    `json:"device"`
	Segment      uint16   `json:"segment"`
	Bus          uint8    `json:"bus"`
	SecondaryBus uint8    `json:"secondary_bus"`
	// Slot is the raw slot field; the slot number is Slot >> 3.
	Slot uint16 `json:"slot"`
}

// SlotNumber returns the physical slot number.
func (d PCIeDeviceID) SlotNumber() uint16 {
	return d.Slot >> pcieSlotShift
}

type PCIeSerial struct {
	Lower uint32 `json:"lower"`
	Upper uint32 `json:"upper"`
}

type PCIeBridge struct {
	SecondaryStatus uint16 `json:"secondary_status"`
	Control         uint16 `json:"control"`
}

// AERInfo is the raw AER capability block. Only the registers below are
// decoded; their bit meanings are left to the reader.
type AERInfo struct {
	UncorStatus   uint32    `json:"uncor_status"`
	UncorMask     uint32    `json:"uncor_mask"`
	UncorSeverity uint32    `json:"uncor_severity"`
	HeaderLog     [4]uint32 `json:"header_log"`
}

// PCIeError is the PCI Express error section.
type PCIeError struct {
	ValidationBits uint64              `json:"validation_bits"`
	PortType       Field[uint32]       `json:"port_type"`
	Version        Field[PCIeVersion]  `json:"version"`
	Command        Field[uint16]       `json:"command"`
	Status         Field[uint16]       `json:"status"`
	DeviceID       Field[PCIeDeviceID] `json:"device_id"`
	Serial         Field[PCIeSerial]   `json:"serial_number"`
	Bridge         Field[PCIeBridge]   `json:"bridge"`
	Capability     Field[[]byte]       `json:"capability"`
	AER            Field[AERInfo]      `json:"aer_info"`
}

func decodePCIe(buf []byte) *PCIeError {
	p := payload{buf: buf, bits: le.Uint64(buf)}
	pcie := &PCIeError{
		ValidationBits: p.bits,
		PortType:       p.u32(PCIeValidPortType, offPCIePortType),
		Command:        p.u16(PCIeValidCommandStatus, offPCIeCommand),
		Status:         p.u16(PCIeValidCommandStatus, offPCIeStatus),
	}
	if p.has(PCIeValidVersion) {
		pcie.Version = Some(PCIeVersion{
			Major: buf[offPCIeVersionMajor],
			Minor: buf[offPCIeVersionMinor],
		})
	}
	if p.has(PCIeValidDeviceID) {
		pcie.DeviceID = Some(PCIeDeviceID{
			VendorID:     le.Uint16(buf[offPCIeVendorID:]),
			DeviceID:     le.Uint16(buf[offPCIeDeviceID:]),
			ClassCode:    [3]uint8{buf[offPCIeClassCode], buf[offPCIeClassCode+1], buf[offPCIeClassCode+2]},
			Function:     buf[offPCIeFunction],
			Device:       buf[offPCIeDevice],
			Segment:      le.Uint16(buf[offPCIeSegment:]),
			Bus:          buf[offPCIeBus],
			SecondaryBus: buf[offPCIeSecondaryBus],
			Slot:         le.Uint16(buf[offPCIeSlot:]),
		})
	}
	if p.has(PCIeValidSerialNumber) {
		pcie.Serial = Some(PCIeSerial{
			Lower: le.Uint32(buf[offPCIeSerialLower:]),
			Upper: le.Uint32(buf[offPCIeSerialUpper:]),
		})
	}
	if p.has(PCIeValidBridgeControl) {
		pcie.Bridge = Some(PCIeBridge{
			SecondaryStatus: le.Uint16(buf[offPCIeBridgeStatus:]),
			Control:         le.Uint16(buf[offPCIeBridgeCtrl:]),
		})
	}
	if p.has(PCIeValidCapability) {
		capb := make([]byte, pcieCapabilitySize)
		copy(capb, buf[offPCIeCapability:])
		pcie.Capability = Some(capb)
	}
	if p.has(PCIeValidAERInfo) {
		aer := buf[offPCIeAER : offPCIeAER+pcieAERSize]
		info := AERInfo{
			UncorStatus:   le.Uint32(aer[offAERUncorStatus:]),
			UncorMask:     le.Uint32(aer[offAERUncorMask:]),
			UncorSeverity: le.Uint32(aer[offAERUncorSeverity:]),
		}
		for i := range info.HeaderLog {
			info.HeaderLog[i] = le.Uint32(aer[offAERHeaderLog+4*i:])
		}
		pcie.AER = Some(info)
	}
	return pcie
}

func (*PCIeError) Kind() Kind { return KindPCIe }

func (pcie *PCIeError) render(p printer, hdr SectionHeader) {
	if v, ok := pcie.PortType.Get(); ok {
		p.line("port_type: %d, %s", v, lookup(pciePortTypeStrs[:], uint64(v)))
	}
	if v, ok := pcie.Version.Get(); ok {
		p.line("version: %d.%d", v.Major, v.Minor)
	}
	if cmd, ok := pcie.Command.Get(); ok {
		st, _ := pcie.Status.Get()
		p.line("command: 0x%04x, status: 0x%04x", cmd, st)
	}
	if d, ok := pcie.DeviceID.Get(); ok {
		p.line("device_id: %04x:%02x:%02x.%x", d.Segment, d.Bus, d.Device, d.Function)
		p.line("slot: %d", d.SlotNumber())
		p.line("secondary_bus: 0x%02x", d.SecondaryBus)
		p.line("vendor_id: 0x%04x, device_id: 0x%04x", d.VendorID, d.DeviceID)
		p.line("class_code: %02x%02x%02x", d.ClassCode[0], d.ClassCode[1], d.ClassCode[2])
	}
	if s, ok := pcie.Serial.Get(); ok {
		p.line("serial number: 0x%04x, 0x%04x", s.Lower, s.Upper)
	}
	if b, ok := pcie.Bridge.Get(); ok {
		p.line("bridge: secondary_status: 0x%04x, control: 0x%04x", b.SecondaryStatus, b.Control)
	}
	// A fatal AER error is reported here because the AER driver never gets
	// to print it.
	if aer, ok := pcie.AER.Get(); ok && hdr.Severity == SevFatal {
		p.line("aer_uncor_status: 0x%08x, aer_uncor_mask: 0x%08x", aer.UncorStatus, aer.UncorMask)
		p.line("aer_uncor_severity: 0x%08x", aer.UncorSeverity)
		p.line("TLP Header: %08x %08x %08x %08x",
			aer.HeaderLog[0], aer.HeaderLog[1], aer.HeaderLog[2], aer.HeaderLog[3])
	}
}
