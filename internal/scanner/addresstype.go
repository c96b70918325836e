package scanner

import (
	tg "tinygo.org/x/bluetooth"
)

// Random-address subtype labels, keyed by the two most-significant bits
// of a random address's top octet (Grounded on houneTeam-pible_go's
// internal/bluetooth/mac_type.go, generalized into AddressInfo fields
// instead of a bare (type, subtype) string pair).
const (
	addressTypePublicOrUnknown = "public_or_unknown"
	addressTypeRandom          = "random"

	randomSubtypeNonResolvablePrivate = "non_resolvable_private"
	randomSubtypeResolvablePrivate    = "resolvable_private"
	randomSubtypeReserved             = "reserved"
	randomSubtypeStaticRandom         = "static_random"
)

// AddressInfo augments a raw driver address with its classification,
// stamped onto ServiceInfo.Details (an opaque slot, spec §1) for any
// subscriber that cares about address stability across reconnects.
type AddressInfo struct {
	Raw     any
	Type    string // addressTypePublicOrUnknown or addressTypeRandom
	Subtype string // only set when Type == addressTypeRandom
}

// classifyDetails stamps an AddressInfo onto details when the driver
// reported a tinygo.org/x/bluetooth Address, leaving any other Details
// payload untouched. A random address's subtype is read off the two
// MSBs of its top octet.
func classifyDetails(details any) any {
	addr, ok := details.(tg.Address)
	if !ok {
		return details
	}

	info := AddressInfo{Raw: details, Type: addressTypePublicOrUnknown}
	if !addr.IsRandom() {
		return info
	}
	info.Type = addressTypeRandom

	b, err := addr.MAC.MarshalBinary()
	if err != nil || len(b) < 1 {
		return info
	}
	switch (b[0] >> 6) & 0x03 {
	case 0:
		info.Subtype = randomSubtypeNonResolvablePrivate
	case 1:
		info.Subtype = randomSubtypeResolvablePrivate
	case 2:
		info.Subtype = randomSubtypeReserved
	case 3:
		info.Subtype = randomSubtypeStaticRandom
	}
	return info
}
