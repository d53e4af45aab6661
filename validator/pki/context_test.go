package pki

import (
	"testing"

	librpki "github.com/RIPE-NCC/rpki-commons-sub001/validator/lib"
	"github.com/stretchr/testify/assert"
)

func TestCreateChildContext(t *testing.T) {
	fixture := newRepositoryFixture(t)
	ctx := NewValidationContext(testRootURI, fixture.root, fixture.root.Resources.Resources())
	assert.Equal(t, 0, ctx.Depth())
	assert.Equal(t, testRepository, ctx.RepositoryURI())
	assert.Equal(t, testMftURI, ctx.ManifestURI())

	inheriting := build(t, childBuilder(fixture.keys, fixture.root, 10, 4))
	child := ctx.CreateChildContext("child.cer", inheriting)
	assert.Equal(t, 1, child.Depth())
	assert.Equal(t, "TEST-CHILD", child.SubjectChain[1].CommonName)
	assert.Len(t, ctx.SubjectChain, 1)
	assert.True(t, child.Resources.Equal(ctx.Resources))

	partial := childBuilder(fixture.keys, fixture.root, 11, 4)
	partial.InheritedResources = []librpki.ResourceType{librpki.RESOURCE_ASN}
	partial.Resources = librpki.MustParseResourceSet("10.1.0.0/16")
	ctx.AddOverclaiming(librpki.MustParseResourceSet("AS64500"))
	child = ctx.CreateChildContext("partial.cer", build(t, partial))
	assert.Equal(t, "AS64496-AS64499, AS64501-AS64511, 10.1.0.0/16", child.Resources.String())
	assert.True(t, child.EffectiveResources().Equal(child.Resources))
	assert.False(t, ctx.EffectiveResources().Contains(librpki.MustParseResourceSet("AS64500")))
}
