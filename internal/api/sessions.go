package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"camgrid/internal/api/models"
	"camgrid/internal/config"
)

// registerSessionRoutes registers the session health and control
// endpoints.
func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-sessions",
		Method:      http.MethodGet,
		Path:        "/api/sessions",
		Summary:     "Session Snapshot",
		Description: "Debug and health snapshot of every stream session plus manager-level flags",
		Tags:        []string{"sessions"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.SessionsResponse, error) {
		return &models.SessionsResponse{Body: s.options.Manager.Snapshot()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-slot",
		Method:      http.MethodPost,
		Path:        "/api/sessions/{index}/restart",
		Summary:     "Restart Slot",
		Description: "Force a full reset and restart of one slot's stream session",
		Tags:        []string{"sessions"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct {
		Index int `path:"index" minimum:"0" maximum:"17" doc:"Grid slot index"`
	}) (*models.SlotRestartResponse, error) {
		if input.Index < 0 || input.Index >= config.MaxSlots {
			return nil, huma.Error404NotFound("no such slot")
		}
		if err := s.options.Manager.RestartSlot(input.Index); err != nil {
			return nil, huma.Error404NotFound(err.Error())
		}
		resp := &models.SlotRestartResponse{}
		resp.Body.Message = "Slot restarting"
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "report-visibility",
		Method:      http.MethodPost,
		Path:        "/api/visibility",
		Summary:     "Report Visibility",
		Description: "Report the browser page visibility state. Hiding suspends all streams; showing restarts them.",
		Tags:        []string{"sessions"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.VisibilityRequest) (*models.VisibilityResponse, error) {
		s.options.Visibility.SetPageVisible(input.Body.Visible)
		resp := &models.VisibilityResponse{}
		resp.Body.Visible = s.options.Visibility.Visible()
		return resp, nil
	})
}
