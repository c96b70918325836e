// Package adstruct decodes BLE advertising-data (AD) structures: the
// length-prefixed TLV grammar carried both inside a remote scanner's raw
// advertisement bytes (spec §4.4) and inside a management-protocol
// DEVICE_FOUND frame's trailing ad-data payload (spec §4.6).
//
// Grounded on houneTeam-pible_go's internal/bluetooth/adv.go
// (decodeADStructures) and buckleypaul-blescan's
// internal/ble/advertisement.go (ParseADTypes).
package adstruct

import "encoding/binary"

// AD type codes recognised by Decode.
const (
	TypeFlags                       = 0x01
	TypeIncomplete16BitServiceUUIDs = 0x02
	TypeComplete16BitServiceUUIDs   = 0x03
	TypeIncomplete32BitServiceUUIDs = 0x04
	TypeComplete32BitServiceUUIDs   = 0x05
	TypeIncomplete128BitServiceUUIDs = 0x06
	TypeComplete128BitServiceUUIDs  = 0x07
	TypeShortenedLocalName          = 0x08
	TypeCompleteLocalName           = 0x09
	TypeTxPowerLevel                = 0x0A
	TypeServiceData16Bit            = 0x16
	TypeSolicitation16Bit           = 0x14
	TypeSolicitation128Bit          = 0x15
	TypeSolicitation32Bit           = 0x1F
	TypeServiceData32Bit            = 0x20
	TypeServiceData128Bit           = 0x21
	TypeManufacturerData            = 0xFF
)

// Decoded is the result of parsing one advertisement's AD structures.
type Decoded struct {
	LocalName        string
	ServiceUUIDs     []string
	ServiceData      map[string][]byte
	ManufacturerData map[uint16][]byte
	TxPower          *int8
}

// Decode walks raw BLE AD-structure TLV data: each record is
// [length][type][value...] where length counts type+value. Decoding
// stops at a zero-length record or truncated trailer; it never panics
// on malformed input.
func Decode(raw []byte) Decoded {
	out := Decoded{
		ServiceData:      map[string][]byte{},
		ManufacturerData: map[uint16][]byte{},
	}

	for i := 0; i < len(raw); {
		length := int(raw[i])
		if length == 0 {
			break
		}
		if i+1+length > len(raw) {
			break
		}
		adType := raw[i+1]
		value := raw[i+2 : i+1+length]

		switch adType {
		case TypeShortenedLocalName, TypeCompleteLocalName:
			if out.LocalName == "" {
				out.LocalName = string(value)
			}
		case TypeIncomplete16BitServiceUUIDs, TypeComplete16BitServiceUUIDs:
			out.ServiceUUIDs = append(out.ServiceUUIDs, uuid16List(value)...)
		case TypeIncomplete32BitServiceUUIDs, TypeComplete32BitServiceUUIDs:
			out.ServiceUUIDs = append(out.ServiceUUIDs, uuid32List(value)...)
		case TypeIncomplete128BitServiceUUIDs, TypeComplete128BitServiceUUIDs:
			out.ServiceUUIDs = append(out.ServiceUUIDs, uuid128List(value)...)
		case TypeSolicitation16Bit:
			out.ServiceUUIDs = append(out.ServiceUUIDs, uuid16List(value)...)
		case TypeSolicitation32Bit:
			out.ServiceUUIDs = append(out.ServiceUUIDs, uuid32List(value)...)
		case TypeSolicitation128Bit:
			out.ServiceUUIDs = append(out.ServiceUUIDs, uuid128List(value)...)
		case TypeServiceData16Bit:
			if len(value) >= 2 {
				u := uuid16String(binary.LittleEndian.Uint16(value[:2]))
				out.ServiceData[u] = append([]byte(nil), value[2:]...)
			}
		case TypeServiceData32Bit:
			if len(value) >= 4 {
				u := uuid32String(binary.LittleEndian.Uint32(value[:4]))
				out.ServiceData[u] = append([]byte(nil), value[4:]...)
			}
		case TypeServiceData128Bit:
			if len(value) >= 16 {
				u := uuid128String(value[:16])
				out.ServiceData[u] = append([]byte(nil), value[16:]...)
			}
		case TypeManufacturerData:
			if len(value) >= 2 {
				id := binary.LittleEndian.Uint16(value[:2])
				out.ManufacturerData[id] = append([]byte(nil), value[2:]...)
			}
		case TypeTxPowerLevel:
			if len(value) >= 1 {
				v := int8(value[0])
				out.TxPower = &v
			}
		}

		i += 1 + length
	}

	return out
}

func uuid16List(b []byte) []string {
	var out []string
	for i := 0; i+2 <= len(b); i += 2 {
		out = append(out, uuid16String(binary.LittleEndian.Uint16(b[i:i+2])))
	}
	return out
}

func uuid32List(b []byte) []string {
	var out []string
	for i := 0; i+4 <= len(b); i += 4 {
		out = append(out, uuid32String(binary.LittleEndian.Uint32(b[i:i+4])))
	}
	return out
}

func uuid128List(b []byte) []string {
	var out []string
	for i := 0; i+16 <= len(b); i += 16 {
		out = append(out, uuid128String(b[i:i+16]))
	}
	return out
}

const baseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

func uuid16String(v uint16) string {
	return "0000" + hex4(v) + baseUUIDSuffix
}

func uuid32String(v uint32) string {
	return hex8(v) + baseUUIDSuffix
}

func uuid128String(b []byte) string {
	if len(b) != 16 {
		return ""
	}
	// BLE carries 128-bit UUIDs little-endian on the wire.
	rev := make([]byte, 16)
	for i := range b {
		rev[i] = b[15-i]
	}
	const hexd = "0123456789abcdef"
	out := make([]byte, 0, 36)
	for i, v := range rev {
		if i == 4 || i == 6 || i == 8 || i == 10 {
			out = append(out, '-')
		}
		out = append(out, hexd[v>>4], hexd[v&0x0f])
	}
	return string(out)
}

func hex4(v uint16) string {
	const hexd = "0123456789abcdef"
	return string([]byte{hexd[(v>>12)&0xf], hexd[(v>>8)&0xf], hexd[(v>>4)&0xf], hexd[v&0xf]})
}

func hex8(v uint32) string {
	const hexd = "0123456789abcdef"
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		shift := uint(28 - i*4)
		b[i] = hexd[(v>>shift)&0xf]
	}
	return string(b)
}
