package server

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/imghost-io/imghost/internal/logging"
	"github.com/imghost-io/imghost/internal/metadata"
	"github.com/imghost-io/imghost/internal/metrics"
	"github.com/imghost-io/imghost/internal/process"
)

// allowedMIMETypes are the content types accepted for upload, keyed by the
// sniffed type.
var allowedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// multipartOverhead is slack for part headers and boundaries, on top of the
// configured payload ceilings, when capping the raw request body.
const multipartOverhead = 64 * 1024

// UploadResult is one row of a successful upload response.
type UploadResult struct {
	URL       string    `json:"url"`
	DeleteURL string    `json:"delete_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type uploadFile struct {
	data []byte
	mime string
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromCtx(r.Context())

	if !s.limiter.Allow() {
		s.recordRejected(metrics.RejectRateLimited)
		respondTooManyRequests(w, "upload rate exceeded, slow down")
		return
	}

	// The reader ceiling leaves headroom for multipart framing; the exact
	// payload limits are enforced per file and in aggregate below.
	bodyLimit := s.cfg.MaxBodyBytes() + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := r.ParseMultipartForm(bodyLimit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.recordRejected(metrics.RejectTooLarge)
			respondTooLarge(w, "request body exceeds the aggregate upload limit")
			return
		}
		respondBadRequest(w, "malformed multipart request")
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		respondBadRequest(w, "no files provided under field 'files'")
		return
	}
	if len(headers) > s.cfg.Upload.MaxFiles {
		respondBadRequest(w, "too many files in one request")
		return
	}

	ttl, ok := s.parseTTL(w, r)
	if !ok {
		return
	}

	ip := clientIP(r)
	if !s.withinQuota(w, r, ip) {
		return
	}

	files, ok := s.validateFiles(w, headers)
	if !ok {
		return
	}

	now := s.now()
	results := make([]UploadResult, 0, len(files))
	for _, f := range files {
		token, hash, err := newDeleteToken()
		if err != nil {
			log.Errorf("upload: delete token", map[string]any{"error": err.Error()})
			respondInternalError(w)
			return
		}

		img := metadata.NewImage("", int64(len(f.data)), f.mime, ip, hash, ttl, now)
		img.ObjectURL = s.publicURL(img.Filename)

		if err := s.obj.Put(r.Context(), img.Filename, bytes.NewReader(f.data), int64(len(f.data)), f.mime); err != nil {
			log.Errorf("upload: store object", map[string]any{"key": img.Filename, "error": err.Error()})
			respondInternalError(w)
			return
		}
		if err := s.meta.Insert(r.Context(), img); err != nil {
			// Remove the orphaned blob; the record never existed.
			_ = s.obj.Delete(r.Context(), img.Filename)
			log.Errorf("upload: insert record", map[string]any{"key": img.Filename, "error": err.Error()})
			respondInternalError(w)
			return
		}

		if s.queue != nil {
			s.queue.Enqueue(process.Job{
				ImageID:  img.ID,
				Filename: img.Filename,
				MIME:     f.mime,
				Bytes:    f.data,
			})
		}

		results = append(results, UploadResult{
			URL:       s.publicURL(img.Filename),
			DeleteURL: s.cfg.Server.PublicBaseURL + "/image/" + token,
			ExpiresAt: img.ExpiresAt,
		})
	}

	respondOK(w, results)
}

// parseTTL reads the optional ttl_minutes form value. Out-of-range values are
// clamped later by the record constructor; non-numeric input is rejected.
func (s *Server) parseTTL(w http.ResponseWriter, r *http.Request) (time.Duration, bool) {
	raw := r.FormValue("ttl_minutes")
	if raw == "" {
		return 0, true
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil {
		respondBadRequest(w, "ttl_minutes must be an integer")
		return 0, false
	}
	return time.Duration(minutes) * time.Minute, true
}

// withinQuota enforces the sliding-window per-IP upload quota.
func (s *Server) withinQuota(w http.ResponseWriter, r *http.Request, ip string) bool {
	count, err := s.meta.CountByIPSince(r.Context(), ip, s.now().Add(-time.Hour))
	if err != nil {
		logging.FromCtx(r.Context()).Errorf("upload: quota check", map[string]any{"ip": ip, "error": err.Error()})
		respondInternalError(w)
		return false
	}
	if count >= int64(s.cfg.Upload.IPHourlyQuota) {
		s.recordRejected(metrics.RejectQuota)
		respondTooManyRequests(w, "hourly upload quota reached for this address")
		return false
	}
	return true
}

// validateFiles reads and checks every part before anything is stored, so a
// rejected file never leaves partial uploads behind.
func (s *Server) validateFiles(w http.ResponseWriter, headers []*multipart.FileHeader) ([]uploadFile, bool) {
	files := make([]uploadFile, 0, len(headers))
	var total int64
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			respondBadRequest(w, "unreadable file part")
			return nil, false
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			respondBadRequest(w, "unreadable file part")
			return nil, false
		}
		if len(data) == 0 {
			respondBadRequest(w, "empty file part")
			return nil, false
		}

		mime := http.DetectContentType(data)
		if !allowedMIMETypes[mime] {
			s.recordRejected(metrics.RejectBadType)
			respondUnsupportedType(w, "unsupported image type "+mime)
			return nil, false
		}

		limit := s.cfg.Upload.MaxFileBytes
		if mime == "image/gif" {
			limit = s.cfg.Upload.MaxAnimatedBytes
		}
		if int64(len(data)) > limit {
			s.recordRejected(metrics.RejectTooLarge)
			respondTooLarge(w, "file exceeds the size limit for "+mime)
			return nil, false
		}

		total += int64(len(data))
		if total > s.cfg.MaxBodyBytes() {
			s.recordRejected(metrics.RejectTooLarge)
			respondTooLarge(w, "files exceed the aggregate upload limit")
			return nil, false
		}

		files = append(files, uploadFile{data: data, mime: mime})
	}
	return files, true
}

func (s *Server) recordRejected(reason string) {
	if s.metrics != nil {
		s.metrics.RecordUploadRejected(reason)
	}
}
