package chain

import (
	"testing"

	"github.com/dmitrijs2005/hashfs/internal/cryptox"
	"github.com/stretchr/testify/require"
)

func TestComputeHash_EmptyChainHashesEmptyInput(t *testing.T) {
	require.Equal(t, cryptox.Hash(nil), ComputeHash(New()))
}

func TestComputeHash_DependsOnOrderAndContent(t *testing.T) {
	h1 := cryptox.Hash([]byte("one"))
	h2 := cryptox.Hash([]byte("two"))

	a := &Chain{Versions: []VersionEntry{{Version: 1, Hash: h1}, {Version: 2, Hash: h2}}}
	b := &Chain{Versions: []VersionEntry{{Version: 1, Hash: h2}, {Version: 2, Hash: h1}}}
	c := &Chain{Versions: []VersionEntry{{Version: 1, Hash: h1}}}

	require.NotEqual(t, ComputeHash(a), ComputeHash(b))
	require.NotEqual(t, ComputeHash(a), ComputeHash(c))
	require.Equal(t, ComputeHash(a), ComputeHash(a))
}

func TestComputeHash_DomainSeparatedFromContentHash(t *testing.T) {
	h := cryptox.Hash([]byte("payload"))
	c := &Chain{Versions: []VersionEntry{{Version: 1, Hash: h}}}

	// A single-entry chain hash must not collapse to the entry hash.
	require.NotEqual(t, h, ComputeHash(c))
}

func TestChain_LastAndFind(t *testing.T) {
	c := New()
	require.Nil(t, c.Last())
	require.Nil(t, c.Find(1))

	c.Versions = []VersionEntry{{Version: 3}, {Version: 4}, {Version: 5}}
	require.EqualValues(t, 5, c.Last().Version)
	require.EqualValues(t, 4, c.Find(4).Version)
	require.Nil(t, c.Find(1))
}

func TestChain_Range(t *testing.T) {
	c := New()
	require.Zero(t, c.Range().Min)
	require.Zero(t, c.Range().Max)

	c.Versions = []VersionEntry{{Version: 3}, {Version: 5}}
	r := c.Range()
	require.EqualValues(t, 3, r.Min)
	require.EqualValues(t, 5, r.Max)
}
