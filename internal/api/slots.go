package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"camgrid/internal/api/models"
	"camgrid/internal/config"
)

// registerSlotRoutes registers slot configuration endpoints. The slot file
// is replaced wholesale; partial updates do not exist.
func (s *Server) registerSlotRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-slots",
		Method:      http.MethodGet,
		Path:        "/api/slots",
		Summary:     "Get Slots",
		Description: "Get the camera slot configuration and grid layout",
		Tags:        []string{"slots"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.SlotsResponse, error) {
		file := s.options.Slots.Get()
		return &models.SlotsResponse{Body: slotsToAPI(file)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-slots",
		Method:      http.MethodPut,
		Path:        "/api/slots",
		Summary:     "Replace Slots",
		Description: "Replace the whole slot configuration. All sessions are rebuilt.",
		Tags:        []string{"slots"},
		Errors:      []int{400, 401, 422, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.SlotsUpdateRequest) (*models.SlotsUpdateResponse, error) {
		file := slotsFromAPI(input.Body)
		if err := config.ValidateSlots(&file); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		if err := s.options.Slots.Replace(file); err != nil {
			return nil, huma.Error500InternalServerError("failed to persist slot configuration", err)
		}
		if s.options.Manager != nil {
			s.options.Manager.ApplySlots(s.options.Slots.Get())
		}

		resp := &models.SlotsUpdateResponse{}
		resp.Body.Message = "Slot configuration applied"
		resp.Body.Slots = len(file.Slots)
		return resp, nil
	})
}

func slotsToAPI(file config.SlotsFile) models.SlotsData {
	data := models.SlotsData{
		Grid:  models.GridData{Columns: file.Grid.Columns, Rows: file.Grid.Rows},
		Slots: make([]models.SlotData, 0, len(file.Slots)),
	}
	for _, slot := range file.Slots {
		data.Slots = append(data.Slots, models.SlotData{
			Index: slot.Index,
			URL:   slot.URL,
			Name:  slot.Name,
		})
	}
	return data
}

func slotsFromAPI(data models.SlotsData) config.SlotsFile {
	file := config.SlotsFile{
		Grid:      config.Grid{Columns: data.Grid.Columns, Rows: data.Grid.Rows},
		Slots:     make([]config.Slot, 0, len(data.Slots)),
		UpdatedAt: time.Now(),
	}
	for _, slot := range data.Slots {
		file.Slots = append(file.Slots, config.Slot{
			Index: slot.Index,
			URL:   slot.URL,
			Name:  slot.Name,
		})
	}
	return file
}
