package checkerhttp

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/invoicecheck/internal/checker"
	"github.com/odyssey-erp/invoicecheck/internal/export"
	"github.com/odyssey-erp/invoicecheck/internal/platform/httpx"
	"github.com/odyssey-erp/invoicecheck/internal/recon"
	"github.com/odyssey-erp/invoicecheck/internal/textextract"
	_ "github.com/odyssey-erp/invoicecheck/testing"
)

const ledgerPage = `Invoice Date: 01.05.2026
Sales Order: 12345
Account#: 777
Bill To:
Acme Corp Acme Corp
Total Due: €1000.00 EUR`

const invoiceText = `Exmo(s) Sr(s)
Acme Corp
Fatura FT OM.2026/15
Order/Quote
012345 EUR
Customer
777
Date
2026-05-01
Due Date
2026-05-31
EUR
Currency
Total (EUR) 1.000,30`

const derivedName = "01.05_Acme_Corp_012345_OM.2026_15.pdf"

func newRouter(t *testing.T, maxUpload int64) http.Handler {
	t.Helper()
	svc, err := checker.NewService(checker.DefaultConfig(), textextract.PlainText{}, nil, nil)
	require.NoError(t, err)
	r := chi.NewRouter()
	NewHandler(nil, svc, maxUpload).MountRoutes(r)
	return r
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func validRequest() map[string]any {
	return map[string]any{
		"ledger_pages": []string{ledgerPage},
		"invoices":     []map[string]string{{"filename": "OM.2026_15.pdf", "text": invoiceText}},
	}
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem
}

func TestHandleCheck(t *testing.T) {
	router := newRouter(t, 0)
	req := httptest.NewRequest(http.MethodPost, "/api/checks", jsonBody(t, validRequest()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(HeaderRunID))

	var report checker.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, rec.Header().Get(HeaderRunID), report.RunID)
	assert.Equal(t, "Finance invoice.pdf", report.LedgerDocument)
	require.Len(t, report.Results, 1)
	assert.Equal(t, recon.StatusOK, report.Results[0].Status)
	assert.Equal(t, derivedName, report.Results[0].SourceFile)
	assert.Equal(t, 1, report.Summary.Renamed)
}

func TestHandleCheckWithoutLedger(t *testing.T) {
	body := map[string]any{"invoices": []map[string]string{{"filename": "scan.pdf", "text": "nothing"}}}
	rec := httptest.NewRecorder()
	newRouter(t, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checks", jsonBody(t, body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var report checker.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.LedgerMissing)
	assert.Equal(t, 1, report.Summary.Unrenameable)
}

func TestHandleCheckRejectsBadRequests(t *testing.T) {
	cases := map[string]struct {
		body   string
		detail string
	}{
		"malformed json":   {body: `{"invoices":`, detail: "malformed"},
		"empty batch":      {body: `{}`, detail: "no documents"},
		"missing filename": {body: `{"invoices":[{"text":"x"}]}`, detail: "invoices[0].filename: required"},
	}
	router := newRouter(t, 0)
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checks", strings.NewReader(tc.body)))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			problem := decodeProblem(t, rec)
			assert.Equal(t, http.StatusBadRequest, problem.Status)
			assert.Contains(t, problem.Detail, tc.detail)
		})
	}
}

func TestHandleCheckBodyTooLarge(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t, 16).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checks", jsonBody(t, validRequest())))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, decodeProblem(t, rec).Detail, "16 bytes")
}

func TestHandleCSV(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/checks/csv?bom=1", jsonBody(t, validRequest()))
	newRouter(t, 0).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), export.ResultsCSVName)
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "\ufeffsales_order_number,"))
	assert.Contains(t, body, ",OK,,"+derivedName+",")
}

func multipartBody(t *testing.T, files map[string]string, order []string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandleBundle(t *testing.T) {
	files := map[string]string{
		"Finance invoice.txt": ledgerPage,
		"OM.2026_15.txt":      invoiceText,
		"blank.txt":           "   ",
	}
	body, contentType := multipartBody(t, files, []string{"Finance invoice.txt", "OM.2026_15.txt", "blank.txt"})
	req := httptest.NewRequest(http.MethodPost, "/api/checks/bundle", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	newRouter(t, 0).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, "blank.txt", rec.Header().Get(HeaderFailedDocuments))

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{export.ResultsCSVName, derivedName, export.FailuresCSVName}, names)
}

func TestHandleBundleRejectsBadUploads(t *testing.T) {
	router := newRouter(t, 0)

	body, contentType := multipartBody(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/checks/bundle", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeProblem(t, rec).Detail, "no files uploaded")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checks/bundle", strings.NewReader("plain")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	big, contentType := multipartBody(t, map[string]string{"OM.2026_1.txt": strings.Repeat("x", 4096)}, []string{"OM.2026_1.txt"})
	req = httptest.NewRequest(http.MethodPost, "/api/checks/bundle", big)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	newRouter(t, 64).ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleBundleWithoutExtractor(t *testing.T) {
	svc, err := checker.NewService(checker.DefaultConfig(), nil, nil, nil)
	require.NoError(t, err)
	r := chi.NewRouter()
	NewHandler(nil, svc, 0).MountRoutes(r)

	body, contentType := multipartBody(t, map[string]string{"OM.2026_15.txt": invoiceText}, []string{"OM.2026_15.txt"})
	req := httptest.NewRequest(http.MethodPost, "/api/checks/bundle", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
