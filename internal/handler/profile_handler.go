package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hitoshi/thefn/internal/avatar"
	"github.com/hitoshi/thefn/internal/middleware"
	"github.com/hitoshi/thefn/internal/model"
	"github.com/hitoshi/thefn/internal/profile"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Save(ctx context.Context, userID string, in profile.SaveInput) (*model.Profile, error)
	Get(ctx context.Context, userID string) (*model.Profile, error)
}

// AvatarSampleLocator はユーザーのサンプル画像のパスを返す。
type AvatarSampleLocator interface {
	SamplePath(ctx context.Context, userID string) (string, error)
}

// ProfileHandler はプロフィールとアバターのHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
	samples AvatarSampleLocator
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface, samples AvatarSampleLocator) *ProfileHandler {
	return &ProfileHandler{
		service: service,
		samples: samples,
	}
}

type saveProfileRequest struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
}

type profileResponse struct {
	UserID      string    `json:"userId"`
	Handle      *string   `json:"handle"`
	DisplayName string    `json:"displayName"`
	Bio         *string   `json:"bio"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		UserID:      p.UserID,
		Handle:      p.Handle,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		UpdatedAt:   p.UpdatedAt,
	}
}

// SaveProfile はログインユーザーのプロフィールを作成または更新する。
// POST /api/profile
func (h *ProfileHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req saveProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Save(r.Context(), userID, profile.SaveInput{
		Handle:      req.Handle,
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"profile": toProfileResponse(p),
	})
}

// GetProfile はログインユーザーのプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	p, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if p == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError())
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// AvatarSample はログインユーザーのサンプル画像を返す。
// GET /api/avatar/sample
func (h *ProfileHandler) AvatarSample(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	path, err := h.samples.SamplePath(r.Context(), userID)
	if errors.Is(err, avatar.ErrSampleNotFound) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError())
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("avatar sample file missing",
			slog.String("user_id", userID),
		)
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError())
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", avatar.ContentType(path))
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
