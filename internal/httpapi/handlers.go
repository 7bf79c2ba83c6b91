package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hexfog-backend/internal/auth"
	"github.com/DoyleJ11/hexfog-backend/internal/engine"
	"github.com/DoyleJ11/hexfog-backend/internal/fog"
	"github.com/DoyleJ11/hexfog-backend/internal/hexgrid"
	"github.com/DoyleJ11/hexfog-backend/internal/hub"
	"github.com/DoyleJ11/hexfog-backend/internal/presence"
	"github.com/DoyleJ11/hexfog-backend/internal/room"
	"github.com/DoyleJ11/hexfog-backend/internal/store"
	"github.com/DoyleJ11/hexfog-backend/internal/ws"
	ptypes "github.com/DoyleJ11/hexfog-backend/pkg/types"
)

type api struct {
	hub   *hub.Hub
	store store.Store
	log   *zap.Logger
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// CreateRoom opens a new session on one of the campaign's maps. Only the
// campaign host may do this.
func (a *api) CreateRoom(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.ViewerFrom(r.Context())

	var req ptypes.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CampaignID == "" || req.MapID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody(ptypes.CodeBadRequest, "campaign_id and map_id are required"))
		return
	}

	if err := a.requireHost(r, req.CampaignID, viewerID); err != nil {
		a.writeError(w, err)
		return
	}

	layers, err := a.store.ListLayers(r.Context(), req.MapID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := checkOwner(layers, req.CampaignID); err != nil {
		a.writeError(w, err)
		return
	}
	if _, ok := engine.NewState(engine.Room{}, layers, engine.Beacon{}).Layers[req.ActiveZ]; !ok {
		writeJSON(w, http.StatusNotFound, errorBody(ptypes.CodeNotFound, "map has no layer at active_z"))
		return
	}

	rm := engine.Room{
		ID:         uuid.NewString(),
		CampaignID: req.CampaignID,
		MapID:      req.MapID,
		ActiveZ:    req.ActiveZ,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.store.CreateRoom(r.Context(), rm); err != nil {
		a.writeError(w, err)
		return
	}
	a.log.Info("room created", zap.String("room", rm.ID), zap.String("campaign", rm.CampaignID))
	writeJSON(w, http.StatusCreated, rm)
}

func (a *api) GetBeacon(w http.ResponseWriter, r *http.Request) {
	rm, ok := a.memberRoom(w, r)
	if !ok {
		return
	}
	b := rm.Beacon()
	if b.Revision == 0 {
		writeJSON(w, http.StatusNotFound, errorBody(ptypes.CodeNotFound, "beacon has not been placed"))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GetRevealed returns the caller's own fog mask. z defaults to the room's
// active layer.
func (a *api) GetRevealed(w http.ResponseWriter, r *http.Request) {
	rm, ok := a.memberRoom(w, r)
	if !ok {
		return
	}
	viewerID, _ := auth.ViewerFrom(r.Context())
	info, _, _ := rm.Info()

	z := info.ActiveZ
	if raw := r.URL.Query().Get("z"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(ptypes.CodeBadRequest, "z must be an integer"))
			return
		}
		z = v
	}

	key := fog.Key{MapID: info.MapID, ViewerID: viewerID, Z: z}
	tiles, err := fog.NewLedger(a.store).AllRevealed(r.Context(), key)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ptypes.RevealedResponse{RoomID: info.ID, Z: z, Tiles: toCoords(tiles)})
}

func (a *api) GetPresence(w http.ResponseWriter, r *http.Request) {
	rm, ok := a.memberRoom(w, r)
	if !ok {
		return
	}
	list := a.hub.Presence().List(rm.ID())
	if list == nil {
		list = []presence.Presence{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) CreateLayer(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.ViewerFrom(r.Context())

	var req ptypes.CreateLayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CampaignID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody(ptypes.CodeBadRequest, "campaign_id is required"))
		return
	}
	if err := a.requireHost(r, req.CampaignID, viewerID); err != nil {
		a.writeError(w, err)
		return
	}

	mapID := chi.URLParam(r, "mapID")
	existing, err := a.store.ListLayers(r.Context(), mapID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := checkOwner(existing, req.CampaignID); err != nil {
		a.writeError(w, err)
		return
	}

	layer := engine.Layer{
		MapID:       mapID,
		CampaignID:  req.CampaignID,
		Z:           req.Z,
		Name:        req.Name,
		ImageURL:    req.ImageURL,
		ImageWidth:  req.ImageWidth,
		ImageHeight: req.ImageHeight,
		HexSize:     req.HexSize,
		Columns:     req.Columns,
		Rows:        req.Rows,
		Orientation: hexgrid.Orientation(req.Orientation),
	}.WithDefaults()
	if err := layer.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(ptypes.CodeBadRequest, err.Error()))
		return
	}
	if err := a.store.CreateLayer(r.Context(), layer); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, layer)
}

// ListLayers is open to members of the campaign that owns the map.
func (a *api) ListLayers(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.ViewerFrom(r.Context())
	layers, err := a.store.ListLayers(r.Context(), chi.URLParam(r, "mapID"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	if len(layers) > 0 {
		if _, err := a.hub.Presence().Role(r.Context(), layers[0].CampaignID, viewerID); err != nil {
			a.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, layers)
}

// checkOwner fails with engine.ErrForbidden when the map's layers belong to
// another campaign. A map with no layers yet is claimed by its first one.
func checkOwner(layers []engine.Layer, campaignID string) error {
	for _, l := range layers {
		if l.CampaignID != campaignID {
			return fmt.Errorf("map %s belongs to another campaign: %w", l.MapID, engine.ErrForbidden)
		}
	}
	return nil
}

func (a *api) requireHost(r *http.Request, campaignID, viewerID string) error {
	role, err := a.hub.Presence().Role(r.Context(), campaignID, viewerID)
	if err != nil {
		return err
	}
	if role != engine.RoleHost {
		return engine.ErrForbidden
	}
	return nil
}

// memberRoom loads the room named in the path and checks that the caller
// belongs to its campaign. It writes the error response itself.
func (a *api) memberRoom(w http.ResponseWriter, r *http.Request) (*room.Room, bool) {
	viewerID, _ := auth.ViewerFrom(r.Context())
	rm, err := a.hub.Ensure(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		a.writeError(w, err)
		return nil, false
	}
	info, _, _ := rm.Info()
	if _, err := a.hub.Presence().Role(r.Context(), info.CampaignID, viewerID); err != nil {
		a.writeError(w, err)
		return nil, false
	}
	return rm, true
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", zap.Error(err))
		writeJSON(w, status, errorBody(ptypes.CodeInternal, "internal error"))
		return
	}
	code := ws.ErrorCode(err)
	switch {
	case errors.Is(err, store.ErrConflict):
		code = ptypes.CodeConflict
	case errors.Is(err, auth.ErrUnauthenticated):
		code = ptypes.CodeNotAuthorized
	}
	writeJSON(w, status, errorBody(code, err.Error()))
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotAuthorized), errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrOutOfBounds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func errorBody(code, msg string) errorResponse {
	return errorResponse{Code: code, Error: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toCoords(cs []hexgrid.Coord) []ptypes.Coord {
	out := make([]ptypes.Coord, len(cs))
	for i, c := range cs {
		out[i] = ptypes.Coord{Q: c.Q, R: c.R}
	}
	return out
}
