// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"database/sql"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-style/internal/decoder"
	"github.com/joeblew999/plat-style/internal/service"
	"github.com/joeblew999/plat-style/internal/theme"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Theme *service.ThemeService
	Tiles *service.TileStore
	Pool  *decoder.Pool
}

// Types

type ThemeIDInput struct {
	ID string `path:"id" doc:"Theme ID" example:"day"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

type DecodeBody struct {
	Theme    string  `json:"theme" required:"true" doc:"Theme ID" example:"day"`
	StyleSet string  `json:"styleSet" required:"true" doc:"Style set within the theme" example:"tilezen"`
	Z        int     `json:"z,omitempty" minimum:"0" maximum:"22" doc:"Tile zoom (looked up in the tile store)"`
	X        int     `json:"x,omitempty" doc:"Tile column"`
	Y        int     `json:"y,omitempty" doc:"Tile row"`
	Zoom     float64 `json:"zoom,omitempty" doc:"Display zoom override; defaults to z"`
	Buffer   []byte  `json:"buffer,omitempty" doc:"Inline tile buffer (base64); bypasses the tile store"`
}

type StoreTileBody struct {
	Z    int    `json:"z" required:"true" minimum:"0" maximum:"22" doc:"Zoom level"`
	X    int    `json:"x" required:"true" doc:"Tile column"`
	Y    int    `json:"y" required:"true" doc:"Tile row"`
	Data []byte `json:"data" required:"true" doc:"Raw tile buffer (base64)"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterThemes registers theme management routes.
func (h *APIHandler) RegisterThemes(api huma.API) {
	huma.Get(api, "/api/v1/themes", h.GetThemes, huma.OperationTags("themes"))
	huma.Get(api, "/api/v1/themes/{id}", h.GetTheme, huma.OperationTags("themes"))
	huma.Put(api, "/api/v1/themes/{id}", h.PutTheme, huma.OperationTags("themes"))
	huma.Delete(api, "/api/v1/themes/{id}", h.DeleteTheme, huma.OperationTags("themes"))
}

// RegisterDecode registers the tile decode route.
func (h *APIHandler) RegisterDecode(api huma.API) {
	huma.Post(api, "/api/v1/decode", h.Decode, huma.OperationTags("decode"))
}

// RegisterTiles registers tile store routes.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/tiles", h.GetTiles, huma.OperationTags("tiles"))
	huma.Post(api, "/api/v1/tiles", h.StoreTile, huma.OperationTags("tiles"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetThemes(ctx context.Context, input *struct{}) (*struct{ Body []service.ThemeFile }, error) {
	if h.svc == nil || h.svc.Theme == nil {
		return &struct{ Body []service.ThemeFile }{Body: []service.ThemeFile{}}, nil
	}
	return &struct{ Body []service.ThemeFile }{Body: h.svc.Theme.List()}, nil
}

func (h *APIHandler) GetTheme(ctx context.Context, input *ThemeIDInput) (*struct{ Body *theme.Theme }, error) {
	if h.svc == nil || h.svc.Theme == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	t, ok := h.svc.Theme.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("theme not found")
	}
	return &struct{ Body *theme.Theme }{Body: t}, nil
}

func (h *APIHandler) PutTheme(ctx context.Context, input *struct {
	ThemeIDInput
	RawBody []byte
}) (*struct{ Body MessageBody }, error) {
	if h.svc == nil || h.svc.Theme == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	format := "json"
	if len(input.RawBody) > 0 && input.RawBody[0] != '{' {
		format = "yaml"
	}
	if err := h.svc.Theme.Save(input.ID, input.RawBody, format); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Theme saved"}}, nil
}

func (h *APIHandler) DeleteTheme(ctx context.Context, input *ThemeIDInput) (*struct{ Body MessageBody }, error) {
	if h.svc == nil || h.svc.Theme == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	if err := h.svc.Theme.Delete(input.ID); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Theme deleted"}}, nil
}

func (h *APIHandler) Decode(ctx context.Context, input *struct{ Body DecodeBody }) (*struct{ Body decoder.Response }, error) {
	if h.svc == nil || h.svc.Pool == nil {
		return nil, huma.Error400BadRequest("decoder not available")
	}
	req := input.Body

	buf := req.Buffer
	if len(buf) == 0 {
		if h.svc.Tiles == nil {
			return nil, huma.Error400BadRequest("no tile buffer given and no tile store configured")
		}
		var err error
		buf, err = h.svc.Tiles.Get(req.Z, req.X, req.Y)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, huma.Error404NotFound("tile not found in store")
		}
		if err != nil {
			return nil, huma.Error500InternalServerError(err.Error())
		}
	}

	zoom := req.Zoom
	if zoom == 0 {
		zoom = float64(req.Z)
	}

	resp, err := h.svc.Pool.Decode(ctx, decoder.Request{
		Buffer:   buf,
		StyleSet: req.Theme + "/" + req.StyleSet,
		Zoom:     zoom,
	})
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	return &struct{ Body decoder.Response }{Body: *resp}, nil
}

func (h *APIHandler) GetTiles(ctx context.Context, input *struct{}) (*struct{ Body []service.StoredTile }, error) {
	if h.svc == nil || h.svc.Tiles == nil {
		return &struct{ Body []service.StoredTile }{Body: []service.StoredTile{}}, nil
	}
	tiles, err := h.svc.Tiles.List()
	if err != nil {
		return &struct{ Body []service.StoredTile }{Body: []service.StoredTile{}}, nil
	}
	return &struct{ Body []service.StoredTile }{Body: tiles}, nil
}

func (h *APIHandler) StoreTile(ctx context.Context, input *struct{ Body StoreTileBody }) (*struct{ Body MessageBody }, error) {
	if h.svc == nil || h.svc.Tiles == nil {
		return nil, huma.Error400BadRequest("tile store not available")
	}
	if err := h.svc.Tiles.Put(input.Body.Z, input.Body.X, input.Body.Y, input.Body.Data); err != nil {
		return nil, huma.Error500InternalServerError(err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Tile stored"}}, nil
}
