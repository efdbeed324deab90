package rpc

import "time"

// BuildRequest is the request body for POST /build.
type BuildRequest struct {
	Snapshots []SnapshotSpec `json:"snapshots"`
}

// SnapshotSpec names a snapshot and where its symbols come from. Exactly
// one of Manifest and Doxygen is set.
type SnapshotSpec struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Manifest string `json:"manifest,omitempty"`
	Doxygen  string `json:"doxygen,omitempty"`
	// Force rebuilds a snapshot that is already built.
	Force bool `json:"force,omitempty"`
}

// BuildResponse is the response body for POST /build.
type BuildResponse struct {
	Results []BuildResult `json:"results"`
}

type BuildResult struct {
	RunID   string `json:"run_id,omitempty"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Symbols int    `json:"symbols"`
	Shards  int    `json:"shards"`
	Cached  bool   `json:"cached,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ProgressLine is a single line of NDJSON streamed from the build endpoint.
type ProgressLine struct {
	Type    string       `json:"type"` // "progress" or "result"
	RunID   string       `json:"run_id,omitempty"`
	Message string       `json:"message,omitempty"`
	Result  *BuildResult `json:"result,omitempty"`
}

// SnapshotRef selects a snapshot. An empty Version selects the latest build.
type SnapshotRef struct {
	Snapshot string `json:"snapshot"`
	Version  string `json:"version,omitempty"`
}

// LookupRequest is the request body for POST /lookup.
type LookupRequest struct {
	SnapshotRef
	Query string   `json:"query"`
	Kinds []string `json:"kinds,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

// LookupResponse is the response body for POST /lookup.
type LookupResponse struct {
	Results []SymbolResult `json:"results"`
}

// SymbolResult describes one symbol of a snapshot.
type SymbolResult struct {
	URI           string   `json:"uri"`
	Snapshot      string   `json:"snapshot"`
	Version       string   `json:"version"`
	QualifiedName string   `json:"qualified_name"`
	DisplayName   string   `json:"display_name"`
	Scope         string   `json:"scope,omitempty"`
	Kind          string   `json:"kind"`
	Locations     []string `json:"locations,omitempty"`
}

// PathRequest is the request body for POST /path.
type PathRequest struct {
	SnapshotRef
	Symbol string `json:"symbol"`
}

// PathResponse lists the containers of a symbol from the root down, the
// symbol itself last.
type PathResponse struct {
	Path []SymbolResult `json:"path"`
}

// Inheritance directions.
const (
	DirectionBases       = "bases"
	DirectionDerived     = "derived"
	DirectionAncestors   = "ancestors"
	DirectionDescendants = "descendants"
)

// InheritanceRequest is the request body for POST /inheritance.
type InheritanceRequest struct {
	SnapshotRef
	Symbol    string `json:"symbol"`
	Direction string `json:"direction"`
}

// InheritanceResponse is the response body for POST /inheritance.
type InheritanceResponse struct {
	Results []SymbolResult `json:"results"`
}

// GetDocRequest is the request body for POST /get-doc.
type GetDocRequest struct {
	SnapshotRef
	Symbol string `json:"symbol"`
}

// GetDocResponse is the response body for POST /get-doc.
type GetDocResponse struct {
	Markdown string `json:"markdown"`
}

// RemoveRequest is the request body for POST /remove. An empty Version
// removes the latest build.
type RemoveRequest struct {
	SnapshotRef
}

// RemoveResponse names the removed snapshot.
type RemoveResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClearCacheRequest is the request body for POST /clear-cache. All also
// deletes every stored snapshot and shard blob.
type ClearCacheRequest struct {
	All bool `json:"all,omitempty"`
}

// StatusResponse is the response body for GET /status.
type StatusResponse struct {
	Snapshots []SnapshotStatus `json:"snapshots"`
}

type SnapshotStatus struct {
	Name       string     `json:"name"`
	Version    string     `json:"version"`
	Source     string     `json:"source,omitempty"`
	Built      bool       `json:"built"`
	Latest     bool       `json:"latest,omitempty"`
	BuiltAt    *time.Time `json:"built_at,omitempty"`
	LastUsedAt time.Time  `json:"last_used_at"`
	Symbols    int        `json:"symbols"`
	Shards     int        `json:"shards"`
	Loaded     bool       `json:"loaded"`
}
