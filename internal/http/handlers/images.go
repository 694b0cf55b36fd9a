package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"mediarelay/internal/infra"
	"mediarelay/internal/providers/image"
)

type imageDownloadRequest struct {
	ImageURL string `json:"imageUrl"`
}

// ImageDownload proxies a remote image so browsers can reuse it as a video
// seed without running into CORS.
func (a *App) ImageDownload(w http.ResponseWriter, r *http.Request) {
	var req imageDownloadRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "Image URL is required")
		return
	}
	if a.Images == nil {
		a.error(w, http.StatusInternalServerError, "not_configured", "image download is not configured")
		return
	}
	img, err := a.Images.Fetch(r.Context(), req.ImageURL)
	if err != nil {
		msg := "Failed to fetch image"
		switch {
		case errors.Is(err, image.ErrHostNotAllowed), errors.Is(err, image.ErrNonPublicAddress):
			msg = "Image host is not allowed"
		case errors.Is(err, image.ErrNotImage):
			msg = "URL does not point to an image"
		case errors.Is(err, image.ErrUnsupportedScheme):
			msg = "Image URL must use http or https"
		case errors.Is(err, image.ErrTooLarge):
			msg = "Image is too large"
		}
		a.Logger.Warn().Err(err).
			Str("image_url", infra.Truncate(infra.SanitizeForLog(req.ImageURL), 200)).
			Msg("image download failed")
		a.error(w, http.StatusBadRequest, "bad_request", msg)
		return
	}
	resp := map[string]any{
		"success":     true,
		"imageData":   base64.StdEncoding.EncodeToString(img.Data),
		"contentType": img.ContentType,
	}
	if img.Width > 0 && img.Height > 0 {
		resp["width"] = img.Width
		resp["height"] = img.Height
	}
	a.json(w, http.StatusOK, resp)
}
