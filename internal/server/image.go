package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/imghost-io/imghost/internal/logging"
	"github.com/imghost-io/imghost/internal/metadata"
)

// immutableCacheControl is sent with image redirects. The redirect target is
// short-lived but the image bytes under a filename never change, so CDNs and
// browsers may cache the association forever.
const immutableCacheControl = "public, max-age=31536000, immutable"

// handleServeImage redirects to a presigned download URL for a live image.
func (s *Server) handleServeImage(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	img, err := s.meta.GetByFilename(r.Context(), filename)
	if errors.Is(err, metadata.ErrNotFound) {
		respondNotFound(w, "image not found")
		return
	}
	if err != nil {
		logging.FromCtx(r.Context()).Errorf("serve: load record", map[string]any{"key": filename, "error": err.Error()})
		respondInternalError(w)
		return
	}
	if img.Deleted() {
		respondNotFound(w, "image not found")
		return
	}

	url, err := s.obj.Presign(r.Context(), img.Filename, s.cfg.PresignTTL())
	if err != nil {
		logging.FromCtx(r.Context()).Errorf("serve: presign", map[string]any{"key": filename, "error": err.Error()})
		respondInternalError(w)
		return
	}

	w.Header().Set("Cache-Control", immutableCacheControl)
	http.Redirect(w, r, url, http.StatusFound)
}

// handleDeleteImage removes an image by its deletion secret. The token is
// compared against every stored hash; a miss is indistinguishable from a
// nonexistent image.
func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	log := logging.FromCtx(r.Context())

	records, err := s.meta.ListDeleteTokens(r.Context())
	if err != nil {
		log.Errorf("delete: list tokens", map[string]any{"error": err.Error()})
		respondInternalError(w)
		return
	}

	var match *metadata.TokenRecord
	for i := range records {
		if tokenMatches(records[i].DeleteTokenHash, token) {
			match = &records[i]
			break
		}
	}
	if match == nil {
		respondNotFound(w, "no image matches this token")
		return
	}

	if err := s.obj.Delete(r.Context(), match.Filename); err != nil {
		log.Errorf("delete: remove object", map[string]any{"key": match.Filename, "error": err.Error()})
		respondInternalError(w)
		return
	}
	if err := s.meta.Delete(r.Context(), match.ID); err != nil {
		log.Errorf("delete: remove record", map[string]any{"imageID": match.ID, "error": err.Error()})
		respondInternalError(w)
		return
	}

	// Best effort; the cached copy expires on its own if this fails.
	if s.purger != nil {
		if err := s.purger.PurgeURL(r.Context(), s.publicURL(match.Filename)); err != nil {
			log.Warnf("delete: cdn purge failed", map[string]any{"key": match.Filename, "error": err.Error()})
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
