package models

import "camgrid/internal/session"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc123" doc:"Git commit hash"`
	BuildDate string `json:"build_date" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24" doc:"Go version used to build"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Build platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Slot configuration models
type SlotData struct {
	Index int    `json:"index" example:"0" minimum:"0" maximum:"17" doc:"Grid slot index"`
	URL   string `json:"url" example:"http://cam.local/stream/index.m3u8" doc:"Stream URL, empty for an unconfigured slot"`
	Name  string `json:"name" example:"Driveway" doc:"Display label"`
}

type GridData struct {
	Columns int `json:"columns" example:"3" minimum:"1" doc:"Grid columns"`
	Rows    int `json:"rows" example:"2" minimum:"1" doc:"Grid rows"`
}

type SlotsData struct {
	Grid  GridData   `json:"grid" doc:"Grid layout"`
	Slots []SlotData `json:"slots" doc:"Configured camera slots"`
}

type SlotsResponse struct {
	Body SlotsData
}

type SlotsUpdateRequest struct {
	Body SlotsData
}

type SlotsUpdateResponse struct {
	Body struct {
		Message string `json:"message" example:"Slot configuration applied" doc:"Status message"`
		Slots   int    `json:"slots" example:"6" doc:"Number of configured slots"`
	}
}

// Session models
type SessionsResponse struct {
	Body session.Snapshot
}

type SlotRestartResponse struct {
	Body struct {
		Message string `json:"message" example:"Slot restarting" doc:"Status message"`
	}
}

// Visibility models
type VisibilityRequest struct {
	Body struct {
		Visible bool `json:"visible" doc:"Whether the dashboard page is observable"`
	}
}

type VisibilityResponse struct {
	Body struct {
		Visible bool `json:"visible" doc:"Effective visibility after the report"`
	}
}
