package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/sensiblebit/jksconvert/internal/convert"
	"github.com/sensiblebit/jksconvert/internal/packager"
	"github.com/sensiblebit/jksconvert/internal/testpki"
	"github.com/sensiblebit/jksconvert/internal/toolchain"
	"github.com/sensiblebit/jksconvert/internal/workspace"
)

// stubConverter records requests and returns a fixed result or error.
type stubConverter struct {
	mu   sync.Mutex
	reqs []convert.Request
	err  error
}

func (s *stubConverter) Run(_ context.Context, req convert.Request) (*convert.Result, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &convert.Result{Download: &packager.Download{Name: packager.KeystoreName, ContentType: "application/octet-stream", Body: []byte("jks")}}, nil
}

func (s *stubConverter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

// multipartBody builds a form with the given fields and files.
func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for k, data := range files {
		fw, err := mw.CreateFormFile(k, k+".bin")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func postConvert(t *testing.T, h http.Handler, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %q", rec.Body.String())
	}
	return body.Error
}

func TestHealthz(t *testing.T) {
	// WHY: Load balancers probe /healthz; every response carries a request ID.
	t.Parallel()

	rec := httptest.NewRecorder()
	New(&stubConverter{}, Options{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request ID header")
	}
}

func TestConvert_ParsesForm(t *testing.T) {
	// WHY: Form fields and uploads must reach the pipeline under their roles.
	t.Parallel()

	stub := &stubConverter{}
	body, ct := multipartBody(t,
		map[string]string{
			fieldConversionType: "pem_to_jks",
			fieldAlias:          "server",
			fieldPassword:       "source-secret",
			fieldDestPassword:   "dest-secret",
		},
		map[string][]byte{fieldCertificate: []byte("cert"), fieldKey: []byte("key")},
	)
	rec := postConvert(t, New(stub, Options{MaxUploadBytes: 1 << 20}).Handler(), body, ct)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%q", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, packager.KeystoreName) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if stub.calls() != 1 {
		t.Fatalf("converter called %d times", stub.calls())
	}
	got := stub.reqs[0]
	if got.Direction != convert.PemToContainer || got.Alias != "server" ||
		got.SourcePassword != "source-secret" || got.DestPassword != "dest-secret" {
		t.Errorf("request = %+v", got)
	}
	if string(got.Inputs[convert.RoleCertificate]) != "cert" || string(got.Inputs[convert.RoleKey]) != "key" {
		t.Errorf("inputs = %v", got.Inputs)
	}
	if got.ID == "" || got.ID != rec.Header().Get(RequestIDHeader) {
		t.Errorf("request ID %q not propagated", got.ID)
	}
}

func TestConvert_SizeLimitBoundary(t *testing.T) {
	// WHY: A body exactly at the ceiling is accepted; one byte over is
	// rejected before the pipeline runs.
	t.Parallel()

	body, ct := multipartBody(t,
		map[string]string{fieldConversionType: "jks-to-pem"},
		map[string][]byte{fieldKeystore: bytes.Repeat([]byte{0xFE}, 4096)},
	)
	size := int64(body.Len())

	tests := []struct {
		name       string
		limit      int64
		wantStatus int
		wantCalls  int
	}{
		{"at ceiling", size, http.StatusOK, 1},
		{"one byte over", size - 1, http.StatusRequestEntityTooLarge, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stub := &stubConverter{}
			rec := postConvert(t, New(stub, Options{MaxUploadBytes: tt.limit}).Handler(), bytes.NewBuffer(body.Bytes()), ct)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if stub.calls() != tt.wantCalls {
				t.Errorf("converter called %d times, want %d", stub.calls(), tt.wantCalls)
			}
		})
	}
}

func TestConvert_SizeLimitWithoutContentLength(t *testing.T) {
	// WHY: A chunked upload has no Content-Length; the body reader itself must
	// enforce the ceiling.
	t.Parallel()

	body, ct := multipartBody(t,
		map[string]string{fieldConversionType: "jks-to-pem"},
		map[string][]byte{fieldKeystore: bytes.Repeat([]byte{0xFE}, 4096)},
	)
	req := httptest.NewRequest(http.MethodPost, "/convert", io.NopCloser(body))
	req.ContentLength = -1
	req.Header.Set("Content-Type", ct)

	stub := &stubConverter{}
	rec := httptest.NewRecorder()
	New(stub, Options{MaxUploadBytes: 1024}).Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	if stub.calls() != 0 {
		t.Error("converter ran for an oversized body")
	}
}

func TestConvert_ErrorMapping(t *testing.T) {
	// WHY: Each error kind maps to its status, and only the user message
	// reaches the response body.
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"input", &convert.Error{Kind: convert.KindInput, Msg: "missing keystore file"}, http.StatusBadRequest, "missing keystore file"},
		{"validation", &convert.Error{Kind: convert.KindValidation, Msg: convert.ValidationMessage}, http.StatusBadRequest, convert.ValidationMessage},
		{"tool", &convert.Error{Kind: convert.KindExternalTool, Err: errors.New("exit 1 in /tmp/jksconvert-abc")}, http.StatusInternalServerError, "conversion failed"},
		{"resource", &convert.Error{Kind: convert.KindResource, Err: errors.New("mkdir /tmp: read-only")}, http.StatusInternalServerError, "internal error"},
		{"untyped", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			body, ct := multipartBody(t,
				map[string]string{fieldConversionType: "jks-to-pem"},
				map[string][]byte{fieldKeystore: []byte("jks")},
			)
			rec := postConvert(t, New(&stubConverter{err: tt.err}, Options{}).Handler(), body, ct)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if msg := decodeError(t, rec); msg != tt.wantMsg {
				t.Errorf("message = %q, want %q", msg, tt.wantMsg)
			}
			if strings.Contains(rec.Body.String(), "/tmp") {
				t.Error("response leaks a path")
			}
		})
	}
}

func TestConvert_BadRequests(t *testing.T) {
	// WHY: Malformed requests are answered with 400 and never reach the
	// pipeline.
	t.Parallel()

	t.Run("not multipart", func(t *testing.T) {
		t.Parallel()
		stub := &stubConverter{}
		rec := postConvert(t, New(stub, Options{}).Handler(), bytes.NewBufferString("a=b"), "application/x-www-form-urlencoded")
		if rec.Code != http.StatusBadRequest || stub.calls() != 0 {
			t.Errorf("status = %d calls = %d", rec.Code, stub.calls())
		}
	})

	t.Run("unknown conversion type", func(t *testing.T) {
		t.Parallel()
		stub := &stubConverter{}
		body, ct := multipartBody(t, map[string]string{fieldConversionType: "p7b"}, nil)
		rec := postConvert(t, New(stub, Options{}).Handler(), body, ct)
		if rec.Code != http.StatusBadRequest || stub.calls() != 0 {
			t.Errorf("status = %d calls = %d", rec.Code, stub.calls())
		}
	})
}

func TestConvert_EndToEnd(t *testing.T) {
	// WHY: Through the real pipeline, the "1"/"changeit" keystore yields the
	// archive and the wrong password yields a validation error with no
	// archive; no workspace survives either request.
	t.Parallel()

	pki := testpki.New(t, "http.example.com")
	keystore := pki.JKS(t, "1", "changeit")
	root := t.TempDir()
	p := convert.New(convert.Options{
		Toolchain:  toolchain.NewNative(nil),
		Workspaces: workspace.NewManager(root, nil),
	})
	h := New(p, Options{MaxUploadBytes: 5 << 20}).Handler()

	body, ct := multipartBody(t,
		map[string]string{fieldConversionType: "jks_to_pem", fieldAlias: "1", fieldPassword: "changeit"},
		map[string][]byte{fieldKeystore: keystore},
	)
	rec := postConvert(t, h, body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%q", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, packager.ArchiveName) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	body, ct = multipartBody(t,
		map[string]string{fieldConversionType: "jks_to_pem", fieldAlias: "1", fieldPassword: "wrong"},
		map[string][]byte{fieldKeystore: keystore},
	)
	rec = postConvert(t, h, body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if msg := decodeError(t, rec); msg != convert.ValidationMessage {
		t.Errorf("message = %q", msg)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d workspaces left behind", len(entries))
	}
}
