package fallback

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"kibarashidev/suggestion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Connect(context.Background(), CatalogConnectProps{})
	require.NoError(t, err)
	return c
}

func TestEveryKeyHasCandidates(t *testing.T) {
	c := newCatalog(t)
	audiences := []suggestion.Audience{suggestion.AudienceDefault, suggestion.AudienceStudent, suggestion.AudienceJobSeeker, suggestion.AudienceCareerChanger}

	for _, s := range suggestion.Situations {
		for _, d := range Buckets {
			for _, a := range audiences {
				got := c.Select(context.Background(), s, d, a)
				require.NotEmpty(t, got, "%s/%d/%s", s, d, a)
				assert.LessOrEqual(t, len(got), 3)
				for _, item := range got {
					assert.Equal(t, d, item.DurationMinutes)
					assert.Contains(t, []suggestion.Category{suggestion.CategoryCognitive, suggestion.CategoryBehavioral}, item.Category)
					assert.NotEmpty(t, item.Steps)
				}
			}
		}
	}
}

func TestSelectUnknownKeyIsEmpty(t *testing.T) {
	c := newCatalog(t)
	got := c.Select(context.Background(), suggestion.SituationHome, 45, suggestion.AudienceDefault)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestJobHuntingTableReplacesGeneral(t *testing.T) {
	general := []byte(`
entries:
  - {id: g1, title: General, category: cognitive, durations: [5], steps: [a]}
`)
	jobs := []byte(`
entries:
  - {id: j1, title: Jobs, category: behavioral, durations: [5], steps: [a]}
`)
	c, err := Connect(context.Background(), CatalogConnectProps{General: general, JobHunting: jobs})
	require.NoError(t, err)

	got := c.Select(context.Background(), suggestion.SituationHome, 5, suggestion.AudienceCareerChanger)
	require.Len(t, got, 1)
	assert.Equal(t, "j1", got[0].ID)

	got = c.Select(context.Background(), suggestion.SituationHome, 5, suggestion.AudienceStudent)
	require.Len(t, got, 1)
	assert.Equal(t, "g1", got[0].ID)

	got = c.Select(context.Background(), suggestion.SituationJobHunting, 5, suggestion.AudienceDefault)
	require.Len(t, got, 1)
	assert.Equal(t, "j1", got[0].ID)
}

func TestAudienceTaggedEntriesStayWithinSegment(t *testing.T) {
	jobs := []byte(`
entries:
  - {id: shared, title: Shared, category: cognitive, durations: [5], steps: [a]}
  - {id: seeker, title: Seeker, category: cognitive, audiences: [job_seeker], durations: [5], steps: [a]}
  - {id: changer, title: Changer, category: behavioral, audiences: [career_changer], durations: [5], steps: [a]}
`)
	c, err := Connect(context.Background(), CatalogConnectProps{JobHunting: jobs})
	require.NoError(t, err)
	ctx := context.Background()

	ids := func(items []suggestion.Suggestion) []string {
		var out []string
		for _, s := range items {
			out = append(out, s.ID)
		}
		slices.Sort(out)
		return out
	}

	for i := 0; i < 20; i++ {
		assert.Equal(t, []string{"seeker", "shared"}, ids(c.Select(ctx, suggestion.SituationHome, 5, suggestion.AudienceJobSeeker)))
		assert.Equal(t, []string{"changer", "shared"}, ids(c.Select(ctx, suggestion.SituationHome, 5, suggestion.AudienceCareerChanger)))
	}
	assert.Equal(t, []string{"changer", "seeker", "shared"}, ids(c.Select(ctx, suggestion.SituationJobHunting, 5, suggestion.AudienceDefault)))
}

func TestBundledJobHuntingTagsRespected(t *testing.T) {
	c := newCatalog(t)
	for _, d := range Buckets {
		for i := 0; i < 20; i++ {
			for _, s := range c.Select(context.Background(), suggestion.SituationHome, d, suggestion.AudienceJobSeeker) {
				assert.NotEqual(t, "fb-jh-strengths", s.ID)
			}
			for _, s := range c.Select(context.Background(), suggestion.SituationHome, d, suggestion.AudienceCareerChanger) {
				assert.NotContains(t, []string{"fb-jh-interview-breath", "fb-jh-rejection-reframe"}, s.ID)
			}
		}
	}
}

func TestConnectRejectsBadTables(t *testing.T) {
	_, err := Connect(context.Background(), CatalogConnectProps{
		General: []byte(`entries: [{id: x, title: X, category: sleepy, durations: [5]}]`),
	})
	assert.Error(t, err)

	_, err = Connect(context.Background(), CatalogConnectProps{
		General: []byte(`entries: [{id: x, title: X, category: cognitive, situations: [moon], durations: [5]}]`),
	})
	assert.Error(t, err)

	_, err = Connect(context.Background(), CatalogConnectProps{
		JobHunting: []byte(`entries: [{id: x, title: X, category: cognitive, audiences: [astronaut], durations: [5]}]`),
	})
	assert.Error(t, err)
}

func TestShuffleIsPermutation(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	seen := map[string]bool{}

	for i := 0; i < 200; i++ {
		got := Shuffle(items, rand.IntN)
		require.Len(t, got, len(items))
		sorted := slices.Clone(got)
		slices.Sort(sorted)
		require.Equal(t, items, sorted)
		seen[fmt.Sprint(got)] = true
	}

	assert.Greater(t, len(seen), 1, "shuffle always produced the same order")
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, items, "input must not be mutated")
}

func TestShuffleWithFixedSource(t *testing.T) {
	// Always picking index 0 rotates the first element to the end.
	got := Shuffle([]string{"a", "b", "c"}, func(int) int { return 0 })
	assert.Equal(t, []string{"b", "c", "a"}, got)
}

func TestNearestBucket(t *testing.T) {
	cases := map[int]int{1: 5, 5: 5, 10: 5, 11: 15, 15: 15, 22: 15, 23: 30, 120: 30}
	for in, want := range cases {
		assert.Equal(t, want, NearestBucket(in), "duration %d", in)
	}
}
