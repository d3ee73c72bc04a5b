package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddAppendsChild(t *testing.T) {
	root := New("frame", 0, 64)
	child := root.Add("Ethernet II", 0, 14)

	require := assert.New(t)
	require.Len(root.Children, 1)
	require.Same(child, root.Children[0])
	require.Equal("Ethernet II", child.Summary)
	require.EqualValues(0, child.Start)
	require.EqualValues(14, child.Len)
}

func TestAddfFormatsSummary(t *testing.T) {
	root := New("frame", 0, 64)
	child := root.Addf(14, 20, "IPv4, src: %s, dst: %s", "10.0.0.1", "10.0.0.2")

	assert.Equal(t, "IPv4, src: 10.0.0.1, dst: 10.0.0.2", child.Summary)
	assert.Len(t, root.Children, 1)
}

func TestNestedChildrenBuildATree(t *testing.T) {
	root := New("frame", 0, 100)
	ip := root.Add("IPv4", 14, 20)
	tcp := ip.Add("TCP", 34, 20)
	tcp.Add("HTTP", 54, 46)

	assert.Len(t, root.Children, 1)
	assert.Len(t, root.Children[0].Children, 1)
	assert.Len(t, root.Children[0].Children[0].Children, 1)
	assert.Equal(t, "HTTP", root.Children[0].Children[0].Children[0].Summary)
}

func TestNewTreeWrapsRoot(t *testing.T) {
	root := New("frame", 0, 1)
	tree := NewTree(root)
	assert.Same(t, root, tree.Root)
}
