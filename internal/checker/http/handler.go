// Package checkerhttp exposes the invoice check pipeline over HTTP.
package checkerhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/invoicecheck/internal/checker"
	"github.com/odyssey-erp/invoicecheck/internal/export"
	"github.com/odyssey-erp/invoicecheck/internal/platform/httpx"
	"github.com/odyssey-erp/invoicecheck/internal/textextract"
)

const (
	defaultMaxUploadBytes = 64 << 20
	multipartMemory       = 32 << 20
	defaultLedgerName     = "Finance invoice.pdf"

	// HeaderRunID carries the run id of the report in every check response.
	HeaderRunID = "X-Run-ID"
	// HeaderFailedDocuments lists documents excluded from a bundle.
	HeaderFailedDocuments = "X-Failed-Documents"
)

// CheckService is the pipeline contract used by the handler.
type CheckService interface {
	Check(ctx context.Context, batch *checker.Batch) (checker.Report, error)
	CheckFiles(ctx context.Context, files []checker.File) (checker.Report, error)
}

// Handler serves check requests.
type Handler struct {
	logger    *slog.Logger
	service   CheckService
	validate  *validator.Validate
	maxUpload int64
}

// NewHandler constructs the check handler. maxUploadBytes bounds request
// bodies; zero selects the default.
func NewHandler(logger *slog.Logger, service CheckService, maxUploadBytes int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	return &Handler{
		logger:    logger.With(slog.String("component", "checker_http")),
		service:   service,
		validate:  v,
		maxUpload: maxUploadBytes,
	}
}

type checkRequest struct {
	LedgerName  string           `json:"ledger_name" validate:"omitempty,max=255"`
	LedgerPages []string         `json:"ledger_pages"`
	Invoices    []invoiceRequest `json:"invoices" validate:"max=1000,dive"`
}

type invoiceRequest struct {
	Filename string `json:"filename" validate:"required,max=255"`
	Text     string `json:"text"`
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	report, ok := h.runJSON(w, r)
	if !ok {
		return
	}
	w.Header().Set(HeaderRunID, report.RunID)
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	report, ok := h.runJSON(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteResultsCSV(&buf, report.Results, export.Options{BOM: wantsBOM(r)}); err != nil {
		h.respondError(w, "write csv", err)
		return
	}
	w.Header().Set(HeaderRunID, report.RunID)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.ResultsCSVName))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream csv", slog.Any("error", err))
	}
}

func (h *Handler) handleBundle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.respondBodyError(w, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		httpx.RespondError(w, fmt.Errorf("%w: no files uploaded", httpx.ErrValidation))
		return
	}
	files := make([]checker.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			h.respondError(w, "read upload", err)
			return
		}
		files = append(files, checker.File{Name: fh.Filename, Data: data})
	}

	report, err := h.service.CheckFiles(r.Context(), files)
	if err != nil {
		h.respondError(w, "check files", err)
		return
	}
	var buf bytes.Buffer
	if err := checker.WriteBundle(&buf, report, export.Options{BOM: wantsBOM(r)}); err != nil {
		h.respondError(w, "write bundle", err)
		return
	}
	if len(report.Failures) > 0 {
		names := make([]string, 0, len(report.Failures))
		for _, f := range report.Failures {
			names = append(names, f.Document)
		}
		w.Header().Set(HeaderFailedDocuments, strings.Join(names, ", "))
	}
	w.Header().Set(HeaderRunID, report.RunID)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", checker.BundleName))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream bundle", slog.Any("error", err))
	}
}

// runJSON decodes and validates a check request and runs it. It writes the
// error response itself and reports false on failure.
func (h *Handler) runJSON(w http.ResponseWriter, r *http.Request) (checker.Report, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondBodyError(w, err)
		return checker.Report{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, describe(err)))
		return checker.Report{}, false
	}

	report, err := h.service.Check(r.Context(), req.batch())
	if err != nil {
		h.respondError(w, "check", err)
		return checker.Report{}, false
	}
	return report, true
}

func (req checkRequest) batch() *checker.Batch {
	batch := &checker.Batch{Invoices: make([]textextract.Document, 0, len(req.Invoices))}
	if len(req.LedgerPages) > 0 {
		name := strings.TrimSpace(req.LedgerName)
		if name == "" {
			name = defaultLedgerName
		}
		pages := make([]string, len(req.LedgerPages))
		for i, p := range req.LedgerPages {
			pages[i] = textextract.Normalize(p)
		}
		batch.Ledger = &textextract.Document{Name: name, Pages: pages}
	}
	for _, inv := range req.Invoices {
		batch.Invoices = append(batch.Invoices, textextract.Document{
			Name:  strings.TrimSpace(inv.Filename),
			Pages: []string{textextract.Normalize(inv.Text)},
		})
	}
	return batch
}

func (h *Handler) respondBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Payload Too Large",
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	httpx.RespondError(w, fmt.Errorf("%w: malformed request body", httpx.ErrValidation))
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, checker.ErrNoDocuments), errors.Is(err, checker.ErrNilBatch):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, checker.ErrNotConfigured):
		httpx.RespondError(w, fmt.Errorf("%w: text extraction is not configured", httpx.ErrUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", "check did not finish in time")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func wantsBOM(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("bom")) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", ns, fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}
