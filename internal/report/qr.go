package report

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// RecordQR creates a QR code PNG that ties the record id to the blob
// fingerprint, so a printed report can be matched to its archived blob.
func RecordQR(recordID uint64, fingerprint string, size int) ([]byte, error) {
	fp := sanitizeHex(fingerprint)
	if fp == "" {
		return nil, fmt.Errorf("fingerprint is empty")
	}
	if size <= 0 {
		size = 128
	}
	return qrcode.Encode(QRPayload(recordID, fp), qrcode.Medium, size)
}

// QRPayload is the text stored in the report QR code.
func QRPayload(recordID uint64, fingerprint string) string {
	return fmt.Sprintf("%016X:%s", recordID, sanitizeHex(fingerprint))
}

func sanitizeHex(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'F':
			b.WriteRune(r)
		}
	}
	return b.String()
}
