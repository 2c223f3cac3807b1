package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashguard/pkg/logger"
)

func fixedClock() time.Time {
	return time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
}

func TestMockLoader_ShapeAndDeterminism(t *testing.T) {
	cfg := DefaultConfig()

	first, err := NewMockLoader(cfg).WithClock(fixedClock).Load(context.Background())
	require.NoError(t, err)
	second, err := NewMockLoader(cfg).WithClock(fixedClock).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, first, 55)
	assert.Equal(t, first, second)

	counts := map[string]int{}
	for _, th := range first {
		switch {
		case th.IP != "":
			counts["ip"]++
		case th.URL != "":
			counts["url"]++
			assert.NotEmpty(t, th.Domain)
		case th.Domain != "":
			counts["domain"]++
		case th.Hash != "":
			counts["hash"]++
			assert.Nil(t, th.Location)
			assert.Len(t, th.Hash, 64)
		}

		assert.False(t, th.LastSeen.Before(th.DateAdded))
		assert.GreaterOrEqual(t, th.Confidence, 0)
		assert.LessOrEqual(t, th.Confidence, 100)
		if th.Location != nil {
			assert.True(t, th.HasCoordinates())
		}
	}
	assert.Equal(t, map[string]int{"ip": 25, "domain": 15, "url": 10, "hash": 5}, counts)
}

func TestMockLoader_DifferentSeeds(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	b.Seed = 7

	first, err := NewMockLoader(a).WithClock(fixedClock).Load(context.Background())
	require.NoError(t, err)
	second, err := NewMockLoader(b).WithClock(fixedClock).Load(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first[0].Indicator, second[0].Indicator)
}

func TestMockLoader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockLoader(DefaultConfig()).Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feed.json")
	body := `[{"id":"T-1","indicator":"198.51.100.9","type":"malware","severity":"high",
		"source":"MISP","dateAdded":"2026-05-01T00:00:00Z","lastSeen":"2026-05-02T00:00:00Z",
		"location":{"country":"Japan","latitude":35.6,"longitude":139.7},"tags":["c2"],
		"confidence":90,"isActive":true}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	threats, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, threats, 1)
	assert.Equal(t, "T-1", threats[0].ID)
	assert.True(t, threats[0].HasCoordinates())
	assert.Equal(t, "Japan", threats[0].Country())

	_, err = NewFileLoader(filepath.Join(dir, "missing.json")).Load(context.Background())
	assert.Error(t, err)

	_, err = NewFileLoader("").Load(context.Background())
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry(DefaultConfig(), logger.NewNop())

	assert.Equal(t, []string{"feodotracker", "file", "mock"}, r.Slugs())

	loader, err := r.Get("mock")
	require.NoError(t, err)
	assert.Equal(t, "Mock Feed", loader.Name())

	_, err = r.Get("taxii")
	assert.ErrorIs(t, err, ErrUnknownLoader)

	assert.Error(t, r.Register(NewMockLoader(DefaultConfig())))
	assert.Equal(t, 3, r.Count())
}
