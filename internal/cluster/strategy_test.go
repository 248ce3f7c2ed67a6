package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datasetOf(pts []Point) *Dataset {
	vecs := make([][]float64, len(pts))
	for i, p := range pts {
		vecs[i] = p.Vector.Float64()
	}
	return NewDataset(vecs)
}

func TestStrategiesFindGroups(t *testing.T) {
	ds := datasetOf(groupedPoints(3, 10))
	for _, s := range Strategies(DefaultConfig()) {
		t.Run(s.Name(), func(t *testing.T) {
			labels, err := s.FitAndAssign(ds)
			require.NoError(t, err)
			assert.Equal(t, 3, countClusters(labels))
			for g := 0; g < 3; g++ {
				for i := g * 10; i < (g+1)*10; i++ {
					assert.Equal(t, labels[g*10], labels[i])
				}
			}
		})
	}
}

func TestStrategiesRejectTinyInput(t *testing.T) {
	ds := datasetOf(groupedPoints(1, 2))
	for _, s := range Strategies(DefaultConfig()) {
		_, err := s.FitAndAssign(ds)
		assert.Error(t, err, s.Name())
	}
}

func TestKneeEpsilon(t *testing.T) {
	assert.Equal(t, 0.0, kneeEpsilon(nil))
	assert.Equal(t, 0.5, kneeEpsilon([]float64{0.5, 0.5, 0.5, 0.5}))
	eps := kneeEpsilon([]float64{0.1, 0.1, 0.11, 0.12, 0.12, 0.13, 2.0, 3.0})
	assert.Less(t, eps, 2.0)
}

func TestSilhouetteSeparated(t *testing.T) {
	ds := datasetOf(groupedPoints(2, 5))
	good := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}
	bad := []int{0, 1, 0, 1, 0, 1, 0, 1, 0, 1}
	assert.Greater(t, silhouette(ds, good), silhouette(ds, bad))
}
