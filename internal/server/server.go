// Package server exposes the conversion pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/sensiblebit/jksconvert/internal/convert"
	"github.com/sensiblebit/jksconvert/internal/packager"
)

// Form field names.
const (
	fieldConversionType = "conversion_type"
	fieldAlias          = "alias"
	fieldPassword       = "jks_password"
	fieldDestPassword   = "dest_password"
	fieldFormat         = "format"
	fieldKeystore       = "jks_file"
	fieldCertificate    = "pem_file"
	fieldKey            = "key_file"
)

// defaultFormMemory bounds in-memory form parsing when no upload limit is set.
const defaultFormMemory = 32 << 20

// RequestIDHeader carries the request identifier on every response.
const RequestIDHeader = "X-Request-ID"

// Converter runs one conversion.
type Converter interface {
	Run(ctx context.Context, req convert.Request) (*convert.Result, error)
}

// Options configures a Server.
type Options struct {
	Addr           string
	MaxUploadBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Logger         *slog.Logger
}

// Server is the HTTP front end.
type Server struct {
	converter Converter
	opts      Options
	logger    *slog.Logger
}

// New returns a Server.
func New(converter Converter, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{converter: converter, opts: opts, logger: logger}
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			s.logger.Warn("write error", "error", err)
		}
	})
	r.Post("/convert", s.handleConvert)
	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.opts.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	id := RequestID(r.Context())
	limit := s.opts.MaxUploadBytes

	// Oversized uploads are rejected before the pipeline, and therefore
	// before any workspace, is touched.
	if limit > 0 && r.ContentLength > limit {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, tooLarge(limit))
		return
	}
	memory := int64(defaultFormMemory)
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		memory = limit
	}
	// Uploads no larger than memory are held in memory, never spilled to disk.
	if err := r.ParseMultipartForm(memory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, tooLarge(limit))
			return
		}
		s.writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Warn("removing multipart temp files failed", "request_id", id, "error", err)
		}
	}()

	req, err := s.parseRequest(r)
	if err != nil {
		s.writeConvertError(w, r, err)
		return
	}
	req.ID = id

	res, err := s.converter.Run(r.Context(), req)
	if err != nil {
		s.writeConvertError(w, r, err)
		return
	}
	writeDownload(w, res.Download)
}

func (s *Server) parseRequest(r *http.Request) (convert.Request, error) {
	direction, err := convert.ParseDirection(r.FormValue(fieldConversionType))
	if err != nil {
		return convert.Request{}, err
	}
	req := convert.Request{
		Direction:      direction,
		Alias:          r.FormValue(fieldAlias),
		SourcePassword: r.FormValue(fieldPassword),
		DestPassword:   r.FormValue(fieldDestPassword),
		Format:         packager.Format(r.FormValue(fieldFormat)),
		Inputs:         map[convert.Role][]byte{},
	}

	var fields map[convert.Role]string
	switch direction {
	case convert.ContainerToPem:
		fields = map[convert.Role]string{convert.RoleKeystore: fieldKeystore}
	case convert.PemToContainer:
		fields = map[convert.Role]string{convert.RoleCertificate: fieldCertificate, convert.RoleKey: fieldKey}
	}
	for role, field := range fields {
		data, err := formFile(r.MultipartForm, field)
		if err != nil {
			return convert.Request{}, err
		}
		if data != nil {
			req.Inputs[role] = data
		}
	}
	return req, nil
}

// formFile returns the content of the named upload, or nil if there is none.
func formFile(form *multipart.Form, field string) ([]byte, error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, nil
	}
	f, err := headers[0].Open()
	if err != nil {
		return nil, &convert.Error{Kind: convert.KindResource, State: convert.StateReceived, Err: err}
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &convert.Error{Kind: convert.KindResource, State: convert.StateReceived, Err: err}
	}
	return data, nil
}

func writeDownload(w http.ResponseWriter, dl *packager.Download) {
	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Name))
	w.Header().Set("Content-Length", fmt.Sprint(len(dl.Body)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(dl.Body)
}

// StatusFor maps a conversion error to an HTTP status.
func StatusFor(err error) int {
	switch convert.KindOf(err) {
	case convert.KindInput, convert.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeConvertError(w http.ResponseWriter, r *http.Request, err error) {
	msg := "internal error"
	var ce *convert.Error
	if errors.As(err, &ce) {
		msg = ce.UserMessage()
	}
	status := StatusFor(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "conversion request failed",
		"request_id", RequestID(r.Context()), "kind", convert.KindOf(err).String(), "error", err)
	s.writeError(w, r, status, msg)
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorBody{Error: msg}); err != nil {
		s.logger.WarnContext(r.Context(), "write error", "request_id", RequestID(r.Context()), "error", err)
	}
}

func tooLarge(limit int64) string {
	return fmt.Sprintf("upload exceeds the %d byte limit", limit)
}

type requestIDKey struct{}

// RequestID returns the identifier assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestID assigns every request a random identifier and echoes it in the
// response header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "request",
			"request_id", RequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}
