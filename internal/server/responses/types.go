// Package responses defines the API response types used by the spackbridge
// HTTP handlers.
package responses

import (
	"time"

	"github.com/hgi-dev/spackbridge/internal/recipe"
	"github.com/hgi-dev/spackbridge/internal/session"
	"github.com/hgi-dev/spackbridge/internal/spack"
)

// PackageListResponse is the search/list packages response.
type PackageListResponse struct {
	Packages []string `json:"packages"`
	Total    int      `json:"total"`
	Query    string   `json:"query,omitempty"`
}

// VersionsResponse lists the versions known for a package.
type VersionsResponse struct {
	PackageName string             `json:"package_name"`
	Versions    []spack.VersionRef `json:"versions"`
}

// SessionResponse describes one session.
type SessionResponse struct {
	SessionID string    `json:"session_id"`
	Namespace string    `json:"namespace"`
	Created   time.Time `json:"created"`
	LastUsed  time.Time `json:"last_used"`
}

// SessionListResponse lists active sessions.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int               `json:"total"`
}

// SessionFilesResponse lists the recipes and packages of a session.
type SessionFilesResponse struct {
	SessionID string              `json:"session_id"`
	Recipes   []session.FileEntry `json:"recipes"`
	Packages  []session.FileEntry `json:"packages"`
}

// RecipeListResponse lists the recipes of a session.
type RecipeListResponse struct {
	SessionID string        `json:"session_id"`
	Recipes   []recipe.Info `json:"recipes"`
	Total     int           `json:"total"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
}

// StatusResponse is the operational status response.
type StatusResponse struct {
	Status         string    `json:"status"`
	StartTime      time.Time `json:"start_time"`
	Uptime         float64   `json:"uptime"`
	ActiveSessions int       `json:"active_sessions"`
	SpackPath      string    `json:"spack_path"`
}

// OperationResponse mirrors spack.OperationResult for endpoints that do not
// add fields of their own.
type OperationResponse = spack.OperationResult
