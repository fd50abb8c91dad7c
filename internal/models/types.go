package models

import "time"

type ComponentType string

const (
	ComponentSearch     ComponentType = "search"
	ComponentForm       ComponentType = "form"
	ComponentTable      ComponentType = "table"
	ComponentButton     ComponentType = "button"
	ComponentFilter     ComponentType = "filter"
	ComponentPagination ComponentType = "pagination"
)

// ComponentTypes lists the closed set of component types in a stable order.
var ComponentTypes = []ComponentType{
	ComponentSearch, ComponentForm, ComponentTable, ComponentButton, ComponentFilter, ComponentPagination,
}

// Valid reports whether t is one of ComponentTypes.
func (t ComponentType) Valid() bool {
	for _, v := range ComponentTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Component is one detected interactive or structural element on a page.
type Component struct {
	ID          string        `json:"id" yaml:"id"`
	Type        ComponentType `json:"type" yaml:"type"`
	Label       string        `json:"label" yaml:"label"`
	Selector    string        `json:"selector" yaml:"selector"`
	Description string        `json:"description" yaml:"description"`
	Confidence  float64       `json:"confidence" yaml:"confidence"`
	ActionHints []string      `json:"actionHints" yaml:"actionHints"`
}

// Key is the dedup key used when merging lists from different extraction methods.
func (c Component) Key() string {
	if c.Selector != "" {
		return c.Selector
	}
	return c.ID
}

// Clone returns a deep copy of c.
func (c Component) Clone() Component {
	out := c
	if c.ActionHints != nil {
		out.ActionHints = append([]string(nil), c.ActionHints...)
	}
	return out
}

// CloneComponents deep-copies a component list.
func CloneComponents(in []Component) []Component {
	if in == nil {
		return nil
	}
	out := make([]Component, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}

// Source records which tier produced the returned components.
type Source string

const (
	SourceDemoCache Source = "demo_cache"
	SourceLive      Source = "live"
	SourceHeuristic Source = "heuristic"
)

type Diagnostics struct {
	Source     Source   `json:"source"`
	RetryCount int      `json:"retry_count"`
	TimingMs   int64    `json:"timing_ms"`
	Notes      []string `json:"notes"`
}

type ExtractionResult struct {
	URL           string      `json:"url"`
	NormalizedURL string      `json:"normalizedUrl"`
	Components    []Component `json:"components"`
	Confidence    float64     `json:"confidence"`
	Source        Source      `json:"source"`
	Diagnostics   Diagnostics `json:"diagnostics"`
}

// ComponentIDs returns the ids of the result's components in order.
func (r *ExtractionResult) ComponentIDs() []string {
	ids := make([]string, 0, len(r.Components))
	for _, c := range r.Components {
		ids = append(ids, c.ID)
	}
	return ids
}

// Options tunes a single pipeline invocation. Zero values mean defaults;
// BackgroundLive is a pointer because its default is true.
type Options struct {
	ForceLive      bool  `json:"forceLive,omitempty"`
	TimeoutMs      int   `json:"timeoutMs,omitempty"`
	BackgroundLive *bool `json:"backgroundLive,omitempty"`
}

// Background reports whether a cache hit should schedule a warm refresh.
func (o Options) Background() bool {
	return o.BackgroundLive == nil || *o.BackgroundLive
}

// Timeout returns the live-capture budget, falling back to def.
func (o Options) Timeout(def time.Duration) time.Duration {
	if o.TimeoutMs <= 0 {
		return def
	}
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

// ExtractRequest is one entry of a batch run.
type ExtractRequest struct {
	URL     string  `json:"url"`
	Options Options `json:"options,omitempty"`
}

type EndpointifyJob struct {
	ID                   string            `json:"id"`
	URL                  string            `json:"url"`
	Result               *ExtractionResult `json:"result"`
	SelectedComponentIDs []string          `json:"selectedComponentIds"`
	CreatedAt            time.Time         `json:"createdAt"`
}

type AppKind string

const (
	AppNative        AppKind = "native"
	AppEndpointified AppKind = "endpointified"
	AppComposite     AppKind = "composite"
)

type AppEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	Kind      AppKind   `json:"kind"`
	Ring      string    `json:"ring"`
	Badges    []string  `json:"badges"`
	ToolNames []string  `json:"toolNames"`
	CreatedAt time.Time `json:"createdAt"`
}

type ActivityEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

type ToolCall struct {
	ID        string    `json:"id"`
	ToolName  string    `json:"toolName"`
	AppID     string    `json:"appId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Stats struct {
	Optimizations int     `json:"optimizations"`
	SpeedGainPct  float64 `json:"speedGainPct"`
	NewApps       int     `json:"newApps"`
	Endpointified int     `json:"endpointified"`
}
