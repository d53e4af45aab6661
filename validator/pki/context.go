package pki

import (
	"crypto/x509/pkix"

	librpki "github.com/RIPE-NCC/rpki-commons-sub001/validator/lib"
)

// ValidationContext is the state handed from a validated issuer to its
// children: the issuer certificate, its effective resources and the chain
// of subjects from the trust anchor down.
type ValidationContext struct {
	Location    librpki.ValidationLocation
	Certificate *librpki.RPKICertificate

	// Resources held by Certificate, inherited types resolved.
	Resources    librpki.ResourceSet
	SubjectChain []pkix.Name

	// Resources claimed somewhere up the chain without being held by the
	// issuer. Only populated when overclaiming is allowed.
	Overclaiming librpki.ResourceSet
}

// NewValidationContext returns the context of a trust anchor. Resources are
// the ones the anchor is trusted for, usually its own.
func NewValidationContext(location librpki.ValidationLocation, ta *librpki.RPKICertificate, resources librpki.ResourceSet) *ValidationContext {
	return &ValidationContext{
		Location:     location,
		Certificate:  ta,
		Resources:    resources,
		SubjectChain: []pkix.Name{ta.Certificate.Subject},
	}
}

// EffectiveResources are the issuer resources a child may claim.
func (ctx *ValidationContext) EffectiveResources() librpki.ResourceSet {
	return ctx.Resources.Subtract(ctx.Overclaiming)
}

func (ctx *ValidationContext) AddOverclaiming(resources librpki.ResourceSet) {
	ctx.Overclaiming = ctx.Overclaiming.Union(resources)
}

// CreateChildContext returns the context for validating objects issued by
// child, a CA certificate that passed validation against ctx.
func (ctx *ValidationContext) CreateChildContext(location librpki.ValidationLocation, child *librpki.RPKICertificate) *ValidationContext {
	chain := make([]pkix.Name, len(ctx.SubjectChain), len(ctx.SubjectChain)+1)
	copy(chain, ctx.SubjectChain)
	return &ValidationContext{
		Location:     location,
		Certificate:  child,
		Resources:    child.Resources.DeriveResources(ctx.Resources).Subtract(ctx.Overclaiming),
		SubjectChain: append(chain, child.Certificate.Subject),
		Overclaiming: ctx.Overclaiming,
	}
}

func (ctx *ValidationContext) RepositoryURI() string {
	return ctx.Certificate.RepositoryURI()
}

func (ctx *ValidationContext) ManifestURI() string {
	return ctx.Certificate.ManifestURI()
}

func (ctx *ValidationContext) Depth() int {
	return len(ctx.SubjectChain) - 1
}
