// Package workspace keeps the in-memory record of extraction jobs, the
// apps generated from them, and the activity feed. Data is lost on restart.
package workspace

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"forge-endpointify/internal/models"
)

var (
	ErrUnknownJob  = errors.New("workspace: unknown endpointify job")
	ErrNoSelection = errors.New("workspace: at least one component must be selected")
)

const (
	MaxActivity  = 120
	MaxToolCalls = 500
)

const (
	ActivityEndpointified = "endpointified"
	ActivityGenerated     = "app_generated"
)

var (
	appIDUnsafe = regexp.MustCompile(`[^a-z0-9-]`)
	wordStart   = regexp.MustCompile(`\b\w`)
)

// Snapshot is a point-in-time copy of the workspace.
type Snapshot struct {
	Apps      []models.AppEntry       `json:"apps,omitempty"`
	Jobs      []models.EndpointifyJob `json:"endpointifyJobs,omitempty"`
	Activity  []models.ActivityEvent  `json:"activity,omitempty"`
	ToolCalls []models.ToolCall       `json:"toolCalls,omitempty"`
	Stats     models.Stats            `json:"stats"`
}

type Store struct {
	mu        sync.RWMutex
	apps      map[string]models.AppEntry
	appOrder  []string
	jobs      map[string]*models.EndpointifyJob
	jobOrder  []string
	activity  []models.ActivityEvent
	toolCalls []models.ToolCall
	stats     models.Stats

	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.logger = l } }

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New returns a store seeded with the native apps.
func New(opts ...Option) *Store {
	s := &Store{
		apps:   make(map[string]models.AppEntry),
		jobs:   make(map[string]*models.EndpointifyJob),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("component", "workspace"))

	created := s.now().UTC()
	for _, seed := range []struct {
		id, name string
		tools    []string
	}{
		{"slack", "Slack", []string{"search_messages", "list_channels"}},
		{"github", "GitHub", []string{"list_prs", "list_issues"}},
		{"calendar", "Calendar", []string{"today_events", "next_meetings"}},
	} {
		s.putApp(models.AppEntry{
			ID:        seed.id,
			Name:      seed.name,
			Icon:      seed.name[:1],
			Kind:      models.AppNative,
			Ring:      "amber",
			Badges:    []string{},
			ToolNames: seed.tools,
			CreatedAt: created,
		})
	}
	return s
}

// RecordExtraction stores res as a new job with every component selected.
func (s *Store) RecordExtraction(rawURL string, res *models.ExtractionResult) models.EndpointifyJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &models.EndpointifyJob{
		ID:                   newID("job"),
		URL:                  rawURL,
		Result:               res,
		SelectedComponentIDs: res.ComponentIDs(),
		CreatedAt:            s.now().UTC(),
	}
	s.jobs[job.ID] = job
	s.jobOrder = append(s.jobOrder, job.ID)
	s.stats.Endpointified++

	s.logToolCall("endpointify", "")
	s.logActivity(ActivityEndpointified, "Endpointified URL",
		fmt.Sprintf("%s -> %d components", hostOf(rawURL), len(res.Components)))

	s.logger.Debug("job recorded",
		zap.String("job_id", job.ID),
		zap.String("source", string(res.Source)),
		zap.Int("components", len(res.Components)))
	return copyJob(job)
}

func (s *Store) Job(id string) (models.EndpointifyJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.EndpointifyJob{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	return copyJob(job), nil
}

// GenerateApp turns the selected components of a job into an app entry.
// An app generated again for the same host replaces the previous one.
func (s *Store) GenerateApp(jobID string, selected []string) (models.AppEntry, error) {
	if len(selected) == 0 {
		return models.AppEntry{}, ErrNoSelection
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return models.AppEntry{}, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	job.SelectedComponentIDs = append([]string(nil), selected...)

	host := strings.TrimPrefix(hostnameOf(job.URL), "www.")
	name := AppName(host)
	tools := make([]string, 0, len(selected))
	for _, id := range selected {
		tools = append(tools, "tool_"+id)
	}
	app := models.AppEntry{
		ID:        AppID(host),
		Name:      name,
		Icon:      strings.ToUpper(firstRune(name)),
		Kind:      models.AppEndpointified,
		Ring:      "blue",
		Badges:    []string{"web"},
		ToolNames: tools,
		CreatedAt: s.now().UTC(),
	}
	s.putApp(app)
	s.stats.NewApps++

	s.logToolCall("endpointify_generate", app.ID)
	s.logActivity(ActivityGenerated, "Generated App",
		fmt.Sprintf("%s with %d tools", app.Name, len(selected)))

	s.logger.Info("app generated", zap.String("app_id", app.ID), zap.Int("tools", len(tools)))
	return copyApp(app), nil
}

// LogToolCall records a tool invocation that does not change state, such
// as a status query.
func (s *Store) LogToolCall(toolName, appID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logToolCall(toolName, appID)
}

// Snapshot copies the workspace. Apps and jobs keep insertion order;
// activity is newest first.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Apps:      make([]models.AppEntry, 0, len(s.appOrder)),
		Jobs:      make([]models.EndpointifyJob, 0, len(s.jobOrder)),
		Activity:  append([]models.ActivityEvent(nil), s.activity...),
		ToolCalls: append([]models.ToolCall(nil), s.toolCalls...),
		Stats:     s.stats,
	}
	for _, id := range s.appOrder {
		snap.Apps = append(snap.Apps, copyApp(s.apps[id]))
	}
	for _, id := range s.jobOrder {
		snap.Jobs = append(snap.Jobs, copyJob(s.jobs[id]))
	}
	return snap
}

func (s *Store) putApp(app models.AppEntry) {
	if _, exists := s.apps[app.ID]; !exists {
		s.appOrder = append(s.appOrder, app.ID)
	}
	s.apps[app.ID] = app
}

func (s *Store) logActivity(kind, title, detail string) {
	ev := models.ActivityEvent{
		ID:        newID("act"),
		Kind:      kind,
		Title:     title,
		Detail:    detail,
		Timestamp: s.now().UTC(),
	}
	s.activity = append([]models.ActivityEvent{ev}, s.activity...)
	if len(s.activity) > MaxActivity {
		s.activity = s.activity[:MaxActivity]
	}
}

func (s *Store) logToolCall(toolName, appID string) {
	s.toolCalls = append(s.toolCalls, models.ToolCall{
		ID:        newID("call"),
		ToolName:  toolName,
		AppID:     appID,
		Timestamp: s.now().UTC(),
	})
	if len(s.toolCalls) > MaxToolCalls {
		s.toolCalls = append([]models.ToolCall(nil), s.toolCalls[len(s.toolCalls)-MaxToolCalls:]...)
	}
}

// AppID derives an app id from a hostname: lowercased, with every
// character outside [a-z0-9-] replaced by '-'.
func AppID(host string) string {
	return appIDUnsafe.ReplaceAllString(strings.ToLower(host), "-")
}

// AppName title-cases the first label of host, reading '-' and '_' as
// word breaks.
func AppName(host string) string {
	label, _, _ := strings.Cut(host, ".")
	label = strings.NewReplacer("-", " ", "_", " ").Replace(label)
	return wordStart.ReplaceAllStringFunc(label, strings.ToUpper)
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return strings.ToLower(u.Host)
	}
	return raw
}

func hostnameOf(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return strings.ToLower(u.Hostname())
	}
	return raw
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}

func copyJob(j *models.EndpointifyJob) models.EndpointifyJob {
	out := *j
	out.SelectedComponentIDs = append([]string(nil), j.SelectedComponentIDs...)
	return out
}

func copyApp(a models.AppEntry) models.AppEntry {
	a.Badges = append([]string{}, a.Badges...)
	a.ToolNames = append([]string(nil), a.ToolNames...)
	return a
}
