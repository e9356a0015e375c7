// Package descriptor walks raw USB configuration descriptor buffers.
//
// A configuration descriptor as returned by GET_DESCRIPTOR (or by the sysfs "descriptors"
// file on linux) is a concatenation of sub-descriptors, each starting with a one byte length
// and a one byte type. The walk here never trusts the length bytes: a zero length or a length
// running past the end of the buffer ends the scan.
package descriptor

import (
	"github.com/pkg/errors"
)

// Descriptor types, see USB 2.0 spec table 9-5.
const (
	TypeDevice        = 0x01
	TypeConfiguration = 0x02
	TypeString        = 0x03
	TypeInterface     = 0x04
	TypeEndpoint      = 0x05
)

// Interface class codes of interest.
const (
	ClassAudio = 0x01
	ClassHID   = 0x03
)

// InterfaceDescriptorSize is the minimum length of a standard interface descriptor.
const InterfaceDescriptorSize = 9

// headerSize is bLength + bDescriptorType.
const headerSize = 2

// ErrMalformed is returned by Interfaces when a length field is zero or points past the end
// of the buffer.
var ErrMalformed = errors.New("malformed descriptor")

// InterfaceRecord is the part of a standard interface descriptor used for class matching.
type InterfaceRecord struct {
	Number   uint8
	Class    uint8
	SubClass uint8
	Protocol uint8
}

// Scan reports whether buf contains an audio class interface descriptor. Malformed input
// returns false.
func Scan(buf []byte) bool {
	return HasClass(buf, ClassAudio)
}

// HasClass reports whether buf contains an interface descriptor with the given class. It
// returns on the first match and returns false for malformed input.
func HasClass(buf []byte, class uint8) bool {
	found := false
	//nolint:errcheck
	walk(buf, func(rec InterfaceRecord) bool {
		if rec.Class == class {
			found = true
			return false
		}
		return true
	})
	return found
}

// Interfaces returns every interface record in buf. On malformed input it returns the records
// found before the bad entry along with an error wrapping ErrMalformed.
func Interfaces(buf []byte) ([]InterfaceRecord, error) {
	var recs []InterfaceRecord
	err := walk(buf, func(rec InterfaceRecord) bool {
		recs = append(recs, rec)
		return true
	})
	return recs, err
}

// walk calls visit for each interface descriptor until visit returns false or the buffer ends.
// offset strictly increases each iteration since a zero length aborts the walk.
func walk(buf []byte, visit func(InterfaceRecord) bool) error {
	offset := 0
	for offset < len(buf) {
		if len(buf)-offset < headerSize {
			return errors.Wrapf(ErrMalformed, "truncated header at offset %d", offset)
		}
		length := int(buf[offset])
		if length == 0 {
			return errors.Wrapf(ErrMalformed, "zero length at offset %d", offset)
		}
		if offset+length > len(buf) {
			return errors.Wrapf(ErrMalformed, "length %d at offset %d exceeds buffer of %d bytes",
				length, offset, len(buf))
		}

		// The header check above guarantees the type byte is in range even when length is 1.
		if buf[offset+1] == TypeInterface && length >= InterfaceDescriptorSize {
			entry := buf[offset : offset+length]
			rec := InterfaceRecord{
				Number:   entry[2],
				Class:    entry[5],
				SubClass: entry[6],
				Protocol: entry[7],
			}
			if !visit(rec) {
				return nil
			}
		}
		offset += length
	}
	return nil
}
