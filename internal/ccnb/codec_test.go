package ccnb

import (
	"testing"
	"time"

	"github.com/ccnd-project/ccnd/internal/ccnname"
	"github.com/ccnd-project/ccnd/internal/optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterestRoundTrip(t *testing.T) {
	name, err := ccnname.NameFromStr("/a/b/c")
	require.NoError(t, err)

	it := &Interest{
		Name:                name,
		MinSuffixComponents: optional.Some(1),
		MaxSuffixComponents: optional.Some(3),
		MustBeFresh:         true,
		ChildSelector:       ChildSelectorRightmost,
		InterestLifetime:    4 * time.Second,
		Nonce:               optional.Some(uint32(0xdeadbeef)),
		Exclude: &Exclude{
			AnyFirst:   true,
			Components: []ccnname.Component{ccnname.NewGenericComponent("x")},
		},
	}

	codec := TLVCodec{}
	wire, err := codec.EncodeInterest(it)
	require.NoError(t, err)

	back, err := codec.DecodeInterest(wire)
	require.NoError(t, err)

	assert.True(t, back.Name.Equal(it.Name))
	assert.Equal(t, it.MinSuffixComponents, back.MinSuffixComponents)
	assert.Equal(t, it.MaxSuffixComponents, back.MaxSuffixComponents)
	assert.True(t, back.MustBeFresh)
	assert.Equal(t, ChildSelectorRightmost, back.ChildSelector)
	assert.Equal(t, it.InterestLifetime, back.InterestLifetime)
	assert.Equal(t, it.Nonce, back.Nonce)
	require.NotNil(t, back.Exclude)
	assert.True(t, back.Exclude.AnyFirst)
	require.Len(t, back.Exclude.Components, 1)
	assert.Equal(t, "x", string(back.Exclude.Components[0].Val))
}

func TestContentObjectRoundTripAndDigest(t *testing.T) {
	name, err := ccnname.NameFromStr("/a/b")
	require.NoError(t, err)

	co := &ContentObject{
		Name:            name,
		Content:         []byte("hello world"),
		FreshnessPeriod: 10 * time.Second,
	}

	codec := TLVCodec{}
	wire, err := codec.EncodeData(co)
	require.NoError(t, err)
	assert.NotEqual(t, [32]byte{}, co.Digest)

	back, err := codec.DecodeData(wire)
	require.NoError(t, err)
	assert.True(t, back.Name.Equal(co.Name))
	assert.Equal(t, co.Content, back.Content)
	assert.Equal(t, co.FreshnessPeriod, back.FreshnessPeriod)
	assert.Equal(t, co.Digest, back.Digest)

	full := co.FullName()
	assert.Equal(t, len(co.Name)+1, len(full))
	assert.Equal(t, ccnname.TypeImplicitSha256DigestComponent, full[len(full)-1].Typ)
}

func TestSelectorsMatchExactRequiresFullMatch(t *testing.T) {
	name, _ := ccnname.NameFromStr("/a/b")
	it := &Interest{Name: name, MaxSuffixComponents: optional.Some(0)}

	exact, _ := ccnname.NameFromStr("/a/b")
	assert.True(t, it.SelectorsMatch(exact))

	longer, _ := ccnname.NameFromStr("/a/b/c")
	assert.False(t, it.SelectorsMatch(longer))
}
