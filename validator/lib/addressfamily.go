package librpki

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// https://tools.ietf.org/html/rfc3779#section-2.2.3.3

const (
	AFI_IPV4 uint16 = 1
	AFI_IPV6 uint16 = 2
)

var (
	IPV4_ADDRESS_FAMILY = AddressFamily{AFI: AFI_IPV4}
	IPV6_ADDRESS_FAMILY = AddressFamily{AFI: AFI_IPV6}
)

type AddressFamily struct {
	AFI  uint16
	SAFI *uint8
}

func NewAddressFamilyWithSAFI(afi uint16, safi uint8) AddressFamily {
	return AddressFamily{AFI: afi, SAFI: &safi}
}

func (af AddressFamily) HasSAFI() bool {
	return af.SAFI != nil
}

// WithoutSAFI drops the subsequent address family identifier.
func (af AddressFamily) WithoutSAFI() AddressFamily {
	return AddressFamily{AFI: af.AFI}
}

func (af AddressFamily) Equal(o AddressFamily) bool {
	return af.Compare(o) == 0
}

// Compare orders by AFI, then families without SAFI first, then by SAFI.
func (af AddressFamily) Compare(o AddressFamily) int {
	switch {
	case af.AFI < o.AFI:
		return -1
	case af.AFI > o.AFI:
		return 1
	case af.SAFI == nil && o.SAFI == nil:
		return 0
	case af.SAFI == nil:
		return -1
	case o.SAFI == nil:
		return 1
	case *af.SAFI < *o.SAFI:
		return -1
	case *af.SAFI > *o.SAFI:
		return 1
	}
	return 0
}

func (af AddressFamily) ResourceType() (ResourceType, error) {
	switch af.AFI {
	case AFI_IPV4:
		return RESOURCE_IPV4, nil
	case AFI_IPV6:
		return RESOURCE_IPV6, nil
	}
	return RESOURCE_ASN, errors.Errorf("unsupported address family identifier %d", af.AFI)
}

func AddressFamilyOf(t ResourceType) (AddressFamily, error) {
	switch t {
	case RESOURCE_IPV4:
		return IPV4_ADDRESS_FAMILY, nil
	case RESOURCE_IPV6:
		return IPV6_ADDRESS_FAMILY, nil
	}
	return AddressFamily{}, errors.Errorf("no address family for %v", t)
}

// Bytes returns the 2 or 3 octets carried in the addressFamily OCTET STRING.
func (af AddressFamily) Bytes() []byte {
	b := []byte{byte(af.AFI >> 8), byte(af.AFI)}
	if af.SAFI != nil {
		b = append(b, *af.SAFI)
	}
	return b
}

func (af AddressFamily) marshal(b *cryptobyte.Builder) {
	b.AddASN1OctetString(af.Bytes())
}

// ToDER returns the DER encoded OCTET STRING.
func (af AddressFamily) ToDER() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	af.marshal(b)
	return b.Bytes()
}

func DecodeAddressFamily(data []byte) (AddressFamily, error) {
	if len(data) != 2 && len(data) != 3 {
		return AddressFamily{}, errors.Errorf("address family must be 2 or 3 octets, got %d", len(data))
	}
	af := AddressFamily{AFI: uint16(data[0])<<8 | uint16(data[1])}
	if len(data) == 3 {
		safi := data[2]
		af.SAFI = &safi
	}
	return af, nil
}

// AddressFamilyFromDER decodes a DER encoded OCTET STRING.
func AddressFamilyFromDER(der []byte) (AddressFamily, error) {
	s := cryptobyte.String(der)
	var octets cryptobyte.String
	if !s.ReadASN1(&octets, cbasn1.OCTET_STRING) || !s.Empty() {
		return AddressFamily{}, errors.New("address family is not an octet string")
	}
	return DecodeAddressFamily(octets)
}

func (af AddressFamily) String() string {
	if af.SAFI != nil {
		return fmt.Sprintf("AFI %d SAFI %d", af.AFI, *af.SAFI)
	}
	return fmt.Sprintf("AFI %d", af.AFI)
}
