package workspace

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forge-endpointify/internal/models"
)

var fixedTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func sampleResult(n int) *models.ExtractionResult {
	res := &models.ExtractionResult{
		URL:           "https://www.Example-Shop.co.uk/catalog",
		NormalizedURL: "https://www.example-shop.co.uk/catalog",
		Confidence:    0.62,
		Source:        models.SourceHeuristic,
	}
	for i := 0; i < n; i++ {
		res.Components = append(res.Components, models.Component{
			ID:   fmt.Sprintf("heur_button_%d", i),
			Type: models.ComponentButton,
		})
	}
	return res
}

func TestSeedApps(t *testing.T) {
	s := New(WithClock(func() time.Time { return fixedTime }))
	snap := s.Snapshot()

	require.Len(t, snap.Apps, 3)
	assert.Equal(t, "slack", snap.Apps[0].ID)
	assert.Equal(t, "GitHub", snap.Apps[1].Name)
	assert.Equal(t, "C", snap.Apps[2].Icon)
	for _, app := range snap.Apps {
		assert.Equal(t, models.AppNative, app.Kind)
		assert.Equal(t, "amber", app.Ring)
		assert.Equal(t, fixedTime, app.CreatedAt)
	}
	assert.Empty(t, snap.Jobs)
	assert.Equal(t, models.Stats{}, snap.Stats)
}

func TestRecordExtraction(t *testing.T) {
	s := New()
	job := s.RecordExtraction("https://www.Example-Shop.co.uk:8443/catalog", sampleResult(2))

	assert.Regexp(t, regexp.MustCompile(`^job_[0-9a-f]{8}$`), job.ID)
	assert.Equal(t, []string{"heur_button_0", "heur_button_1"}, job.SelectedComponentIDs)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Stats.Endpointified)
	require.Len(t, snap.Activity, 1)
	assert.Equal(t, "Endpointified URL", snap.Activity[0].Title)
	assert.Equal(t, "www.example-shop.co.uk:8443 -> 2 components", snap.Activity[0].Detail)
	require.Len(t, snap.ToolCalls, 1)
	assert.Equal(t, "endpointify", snap.ToolCalls[0].ToolName)

	got, err := s.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.URL, got.URL)
}

func TestJobUnknown(t *testing.T) {
	_, err := New().Job("job_missing")
	assert.True(t, errors.Is(err, ErrUnknownJob))
}

func TestGenerateApp(t *testing.T) {
	s := New()
	job := s.RecordExtraction("https://www.my_shop-eu.example.com/x", sampleResult(3))

	app, err := s.GenerateApp(job.ID, []string{"heur_button_1", "heur_button_2"})
	require.NoError(t, err)

	assert.Equal(t, "my-shop-eu-example-com", app.ID)
	assert.Equal(t, "My Shop Eu", app.Name)
	assert.Equal(t, "M", app.Icon)
	assert.Equal(t, models.AppEndpointified, app.Kind)
	assert.Equal(t, "blue", app.Ring)
	assert.Equal(t, []string{"web"}, app.Badges)
	assert.Equal(t, []string{"tool_heur_button_1", "tool_heur_button_2"}, app.ToolNames)

	updated, err := s.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"heur_button_1", "heur_button_2"}, updated.SelectedComponentIDs)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Stats.NewApps)
	assert.Len(t, snap.Apps, 4)
	assert.Equal(t, "Generated App", snap.Activity[0].Title)
	assert.Equal(t, "My Shop Eu with 2 tools", snap.Activity[0].Detail)
	assert.Equal(t, app.ID, snap.ToolCalls[len(snap.ToolCalls)-1].AppID)
}

func TestGenerateAppReplacesSameHost(t *testing.T) {
	s := New()
	job := s.RecordExtraction("https://shop.example", sampleResult(2))

	_, err := s.GenerateApp(job.ID, []string{"heur_button_0"})
	require.NoError(t, err)
	_, err = s.GenerateApp(job.ID, []string{"heur_button_1"})
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Len(t, snap.Apps, 4)
	assert.Equal(t, []string{"tool_heur_button_1"}, snap.Apps[3].ToolNames)
	assert.Equal(t, 2, snap.Stats.NewApps)
}

func TestGenerateAppErrors(t *testing.T) {
	s := New()
	job := s.RecordExtraction("https://shop.example", sampleResult(1))

	_, err := s.GenerateApp(job.ID, nil)
	assert.ErrorIs(t, err, ErrNoSelection)

	_, err = s.GenerateApp("job_nope", []string{"x"})
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestActivityCapped(t *testing.T) {
	s := New()
	for i := 0; i < MaxActivity+15; i++ {
		s.RecordExtraction(fmt.Sprintf("https://site%d.example", i), sampleResult(1))
	}
	snap := s.Snapshot()
	require.Len(t, snap.Activity, MaxActivity)
	assert.Equal(t, fmt.Sprintf("site%d.example -> 1 components", MaxActivity+14), snap.Activity[0].Detail)
	assert.Len(t, snap.Jobs, MaxActivity+15)
}

func TestSnapshotIsCopy(t *testing.T) {
	s := New()
	snap := s.Snapshot()
	snap.Apps[0].ToolNames[0] = "mutated"

	assert.Equal(t, "search_messages", s.Snapshot().Apps[0].ToolNames[0])
}

func TestConcurrentRecording(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job := s.RecordExtraction("https://shop.example", sampleResult(1))
			_, _ = s.GenerateApp(job.ID, job.SelectedComponentIDs)
			_ = s.Snapshot()
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, 32, snap.Stats.Endpointified)
	assert.Equal(t, 32, snap.Stats.NewApps)
}

func TestAppNaming(t *testing.T) {
	tests := []struct{ host, id, name string }{
		{"news.ycombinator.com", "news-ycombinator-com", "News"},
		{"Git_Hub.io", "git-hub-io", "Git Hub"},
		{"localhost", "localhost", "Localhost"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.id, AppID(tc.host), tc.host)
		assert.Equal(t, tc.name, AppName(tc.host), tc.host)
	}
}
