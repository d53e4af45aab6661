package librpki

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ResourceExtension is the combined content of the RFC3779 extensions of a
// certificate: the resource types inherited from the issuer and the
// resources held directly.
type ResourceExtension struct {
	inherited map[ResourceType]bool
	resources ResourceSet
}

// NewResourceExtension fails when an inherited type also has resources or
// when the extension would convey nothing.
func NewResourceExtension(inherited []ResourceType, resources ResourceSet) (ResourceExtension, error) {
	ext := ResourceExtension{
		inherited: make(map[ResourceType]bool),
		resources: resources,
	}
	for _, t := range inherited {
		if resources.ContainsType(t) {
			return ResourceExtension{}, errors.Errorf("%v resources are both inherited and owned", t)
		}
		ext.inherited[t] = true
	}
	if len(ext.inherited) == 0 && resources.IsEmpty() {
		return ResourceExtension{}, errors.New("resource extension must inherit or contain resources")
	}
	return ext, nil
}

func ResourceExtensionOfResources(resources ResourceSet) (ResourceExtension, error) {
	return NewResourceExtension(nil, resources)
}

func ResourceExtensionOfInherited(types ...ResourceType) (ResourceExtension, error) {
	return NewResourceExtension(types, ResourceSet{})
}

func AllResourcesInherited() ResourceExtension {
	ext, _ := ResourceExtensionOfInherited(ResourceTypes...)
	return ext
}

func (ext ResourceExtension) IsInherited(t ResourceType) bool {
	return ext.inherited[t]
}

func (ext ResourceExtension) InheritedTypes() []ResourceType {
	types := make([]ResourceType, 0, len(ext.inherited))
	for t := range ext.inherited {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (ext ResourceExtension) IsFullyInherited() bool {
	return len(ext.inherited) == len(ResourceTypes)
}

func (ext ResourceExtension) IsPartiallyInherited() bool {
	return len(ext.inherited) > 0 && !ext.IsFullyInherited()
}

// Resources held directly, without inherited ones.
func (ext ResourceExtension) Resources() ResourceSet {
	return ext.resources
}

// DeriveResources returns the owned resources plus, for every inherited
// type, the parent's resources of that type.
func (ext ResourceExtension) DeriveResources(parent ResourceSet) ResourceSet {
	result := ext.resources
	for t := range ext.inherited {
		result = result.Union(parent.RestrictTo(t))
	}
	return result
}

func (ext ResourceExtension) Equal(o ResourceExtension) bool {
	if len(ext.inherited) != len(o.inherited) {
		return false
	}
	for t := range ext.inherited {
		if !o.inherited[t] {
			return false
		}
	}
	return ext.resources.Equal(o.resources)
}

func (ext ResourceExtension) String() string {
	parts := make([]string, 0)
	for _, t := range ext.InheritedTypes() {
		parts = append(parts, "inherit "+t.String())
	}
	if !ext.resources.IsEmpty() {
		parts = append(parts, ext.resources.String())
	}
	return strings.Join(parts, ", ")
}

// Extensions returns the critical RFC3779 extensions to embed in a certificate.
func (ext ResourceExtension) Extensions() ([]pkix.Extension, error) {
	extensions := make([]pkix.Extension, 0, 2)
	ipBlocks, err := EncodeIPAddressBlocks(ext.IsInherited(RESOURCE_IPV4), ext.IsInherited(RESOURCE_IPV6), ext.resources)
	if err != nil {
		return nil, errors.Wrap(err, "encoding IP address blocks")
	}
	if ipBlocks != nil {
		extensions = append(extensions, pkix.Extension{Id: IpAddrBlock, Critical: true, Value: ipBlocks})
	}
	asIds, err := EncodeASIdentifiers(ext.IsInherited(RESOURCE_ASN), ext.resources)
	if err != nil {
		return nil, errors.Wrap(err, "encoding AS identifiers")
	}
	if asIds != nil {
		extensions = append(extensions, pkix.Extension{Id: AutonomousSysIds, Critical: true, Value: asIds})
	}
	return extensions, nil
}

// HasResourceExtensions returns true when either RFC3779 extension is present.
func HasResourceExtensions(cert *x509.Certificate) bool {
	for _, extension := range cert.Extensions {
		if extension.Id.Equal(IpAddrBlock) || extension.Id.Equal(AutonomousSysIds) {
			return true
		}
	}
	return false
}

// ParseResourceExtension reads both RFC3779 extensions of a certificate.
// Each extension present must be critical. Absent extensions mean no
// resources of that kind.
func ParseResourceExtension(cert *x509.Certificate) (ResourceExtension, error) {
	inherited, resources, err := decodeResourceExtension(cert)
	if err != nil {
		return ResourceExtension{}, err
	}
	return NewResourceExtension(inherited, resources)
}

func decodeResourceExtension(cert *x509.Certificate) ([]ResourceType, ResourceSet, error) {
	var b ResourceSetBuilder
	inherited := make([]ResourceType, 0)
	for _, extension := range cert.Extensions {
		switch {
		case extension.Id.Equal(IpAddrBlock):
			if !extension.Critical {
				return nil, ResourceSet{}, errors.New("IP address delegation extension must be critical")
			}
			blocks, err := DecodeIPAddressBlocks(extension.Value)
			if err != nil {
				return nil, ResourceSet{}, errors.Wrap(err, "decoding IP address blocks")
			}
			for _, blk := range blocks {
				t, _ := blk.Family.ResourceType()
				if blk.Inherited {
					inherited = append(inherited, t)
				} else {
					b.AddSet(blk.Resources)
				}
			}
		case extension.Id.Equal(AutonomousSysIds):
			if !extension.Critical {
				return nil, ResourceSet{}, errors.New("AS identifier delegation extension must be critical")
			}
			inherit, resources, err := DecodeASIdentifiers(extension.Value)
			if err != nil {
				return nil, ResourceSet{}, errors.Wrap(err, "decoding AS identifiers")
			}
			if inherit {
				inherited = append(inherited, RESOURCE_ASN)
			} else {
				b.AddSet(resources)
			}
		}
	}
	resources, err := b.ResourceSet()
	return inherited, resources, err
}
