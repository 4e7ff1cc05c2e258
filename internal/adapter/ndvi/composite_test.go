package ndvi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towerguard/site-health/internal/adapter/fetch"
)

func px(vs ...float64) []*float64 {
	out := make([]*float64, len(vs))
	for i := range vs {
		v := vs[i]
		out[i] = &v
	}
	return out
}

func TestMasked(t *testing.T) {
	assert.False(t, Masked(0))
	assert.True(t, Masked(1024), "opaque cloud")
	assert.True(t, Masked(2048), "cirrus")
	assert.True(t, Masked(1024|2048))
	assert.False(t, Masked(1<<9))
}

func TestComposite_SingleScene(t *testing.T) {
	// NDVI per pixel: 0.6, 0.6, 0.2, 0.2
	scene := Scene{
		ID:  "s1",
		Red: px(0.1, 0.1, 0.4, 0.4),
		NIR: px(0.4, 0.4, 0.6, 0.6),
		QA:  []int{0, 0, 0, 0},
	}

	stats, err := Composite([]Scene{scene})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, stats.Mean, 1e-9)
	assert.InDelta(t, 0.2, stats.Std, 1e-9)
	assert.Equal(t, 1, stats.Scenes)
	assert.Equal(t, 4, stats.Pixels)
}

func TestComposite_MasksCloudAndCirrus(t *testing.T) {
	clearScene := Scene{ID: "clear", Red: px(0.1, 0.1), NIR: px(0.4, 0.4), QA: []int{0, 0}}
	cloudy := Scene{ID: "cloudy", Red: px(0.9, 0.9), NIR: px(0.1, 0.1), QA: []int{1024, 2048}}

	stats, err := Composite([]Scene{clearScene, cloudy})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, stats.Mean, 1e-9, "masked pixels do not drag the mean down")
	assert.InDelta(t, 0.0, stats.Std, 1e-9)
	assert.Equal(t, 1, stats.Scenes)
}

func TestComposite_AveragesPerPixelAcrossScenes(t *testing.T) {
	a := Scene{ID: "a", Red: px(0.1, 0.4), NIR: px(0.4, 0.6), QA: []int{0, 0}}  // 0.6, 0.2
	b := Scene{ID: "b", Red: px(0.2, 0.4), NIR: px(0.2, 0.6), QA: []int{0, 1024}} // 0.0, masked

	stats, err := Composite([]Scene{a, b})
	require.NoError(t, err)
	// composite pixels: (0.6+0.0)/2 = 0.3, 0.2
	assert.InDelta(t, 0.25, stats.Mean, 1e-9)
	assert.InDelta(t, 0.05, stats.Std, 1e-9)
	assert.Equal(t, 2, stats.Scenes)
	assert.Equal(t, 2, stats.Pixels)
}

func TestComposite_NoImageryIsNotZero(t *testing.T) {
	_, err := Composite(nil)
	assert.ErrorIs(t, err, ErrNoImagery)

	allCloud := Scene{ID: "c", Red: px(0.1, 0.1), NIR: px(0.4, 0.4), QA: []int{1024, 2048}}
	_, err = Composite([]Scene{allCloud})
	assert.ErrorIs(t, err, ErrNoImagery)

	noData := Scene{ID: "n", Red: []*float64{nil}, NIR: px(0.4), QA: []int{0}}
	_, err = Composite([]Scene{noData})
	assert.ErrorIs(t, err, ErrNoImagery)
}

func TestComposite_MismatchedBands(t *testing.T) {
	a := Scene{ID: "a", Red: px(0.1, 0.1), NIR: px(0.4, 0.4), QA: []int{0, 0}}
	b := Scene{ID: "b", Red: px(0.1), NIR: px(0.4), QA: []int{0}}

	_, err := Composite([]Scene{a, b})
	assert.ErrorIs(t, err, fetch.ErrMalformed)
}
