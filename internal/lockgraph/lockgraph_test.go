package lockgraph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoCycleOnChain(t *testing.T) {
	g := New()
	require.Nil(t, g.Wait(1, 2))
	require.Nil(t, g.Wait(2, 3))
	require.Equal(t, 2, g.Edges())
	require.Empty(t, g.Cycles())
}

func TestClosingEdgeReportsCycle(t *testing.T) {
	g := New()
	require.Nil(t, g.Wait(1, 2))
	require.Nil(t, g.Wait(2, 3))

	cyc := g.Wait(3, 1)
	require.Equal(t, []int64{3, 1, 2, 3}, cyc)
	require.Len(t, g.Cycles(), 1)
}

func TestDoneBreaksCycle(t *testing.T) {
	g := New()
	g.Wait(1, 2)
	require.NotNil(t, g.Wait(2, 1))

	g.Done(2)
	require.Empty(t, g.Cycles())
	require.Equal(t, 1, g.Edges())

	g.Done(1)
	require.Equal(t, 0, g.Edges())
}

func TestWaitReplacesPreviousEdge(t *testing.T) {
	g := New()
	g.Wait(1, 2)
	g.Wait(1, 3)
	require.Equal(t, 1, g.Edges())
	require.Nil(t, g.Wait(2, 1))
}

func TestSelfWait(t *testing.T) {
	g := New()
	require.Equal(t, []int64{7, 7}, g.Wait(7, 7))
	require.Equal(t, 0, g.Edges())
}

func TestForget(t *testing.T) {
	g := New()
	g.Wait(1, 2)
	g.Wait(3, 2)
	g.Forget(2)
	require.Equal(t, 0, g.Edges())
	g.Forget(42)
}
