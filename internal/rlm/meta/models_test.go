package meta

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectModelDepthZeroIsRoot(t *testing.T) {
	s := NewSelector(Config{Root: "root-model", Sub: "sub-model"})
	id, tier := s.SelectModel(0)
	require.Equal(t, "root-model", id)
	require.Equal(t, TierRoot, tier)
}

func TestSelectModelAnyOtherDepthIsSub(t *testing.T) {
	s := NewSelector(Config{Root: "root-model", Sub: "sub-model"})
	for _, depth := range []int{1, 2, 7} {
		id, tier := s.SelectModel(depth)
		require.Equal(t, "sub-model", id)
		require.Equal(t, TierSub, tier)
	}
}

func TestSelectModelFallsBackToDefaultCatalog(t *testing.T) {
	s := NewSelector(Config{})
	id, tier := s.SelectModel(0)
	require.NotEmpty(t, id)
	require.Equal(t, TierRoot, tier)
}
