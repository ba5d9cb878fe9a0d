// Package dmi resolves SMBIOS memory device handles to DIMM locator strings.
package dmi

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/digitalocean/go-smbios/smbios"
)

// Memory Device (Type 17) structure, DSP0134 section 7.18.
const (
	memoryDeviceType    = 17
	deviceLocatorOffset = 0x10
	bankLocatorOffset   = 0x11

	// Formatted drops the 4 byte structure header.
	headerLen = 4
)

// Locator is the bank and device label of one memory device.
type Locator struct {
	Bank   string `json:"bank"`
	Device string `json:"device"`
}

// Table maps memory device handles to their locators.
type Table struct {
	byHandle map[uint16]Locator
}

// FromStructures indexes the type 17 entries of ss. Entries without both
// locator strings are skipped.
func FromStructures(ss []*smbios.Structure) *Table {
	t := &Table{byHandle: make(map[uint16]Locator)}
	for _, s := range ss {
		if s.Header.Type != memoryDeviceType {
			continue
		}
		dev, ok1 := stringAt(s, deviceLocatorOffset)
		bank, ok2 := stringAt(s, bankLocatorOffset)
		if !ok1 || !ok2 {
			continue
		}
		t.byHandle[s.Header.Handle] = Locator{Bank: bank, Device: dev}
	}
	return t
}

// FromReader decodes a raw SMBIOS structure table.
func FromReader(r io.Reader) (*Table, error) {
	ss, err := smbios.NewDecoder(r).Decode()
	if err != nil {
		return nil, fmt.Errorf("decode smbios structures: %w", err)
	}
	return FromStructures(ss), nil
}

// FromFile decodes a raw SMBIOS table saved to path, for example a copy of
// /sys/firmware/dmi/tables/DMI.
func FromFile(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromReader(bytes.NewReader(b))
}

// Local reads the SMBIOS table of the running machine.
func Local() (*Table, error) {
	rc, _, err := smbios.Stream()
	if err != nil {
		return nil, fmt.Errorf("open dmi/smbios stream: %w", err)
	}
	defer rc.Close()
	return FromReader(rc)
}

// Len returns the number of known memory devices.
func (t *Table) Len() int {
	return len(t.byHandle)
}

// Lookup returns the locator for handle.
func (t *Table) Lookup(handle uint16) (Locator, bool) {
	if t == nil {
		return Locator{}, false
	}
	loc, ok := t.byHandle[handle]
	return loc, ok
}

// MemDevName implements cper.DIMMResolver.
func (t *Table) MemDevName(handle uint16) (bank, device string, ok bool) {
	loc, ok := t.Lookup(handle)
	return loc.Bank, loc.Device, ok
}

func stringAt(s *smbios.Structure, offset int) (string, bool) {
	index := offset - headerLen
	if index >= len(s.Formatted) {
		return "", false
	}
	n := int(s.Formatted[index])
	if n == 0 || n > len(s.Strings) {
		return "", false
	}
	return strings.TrimSpace(s.Strings[n-1]), true
}
