package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/promptpipe/pkg/checklist"
	"github.com/jingkaihe/promptpipe/pkg/review"
	"github.com/jingkaihe/promptpipe/pkg/templates"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	templateDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "commit-prompt.md"), []byte(`---
name: Commit Prompt
---
Summarize: {{.diff}}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "cyclic.md"), []byte("@include(cyclic)"), 0o644))

	checklistDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(checklistDir, "secrets.md"), []byte(`---
name: Secrets Review
items:
  - id: no-secrets
    description: No hardcoded credentials
    severity: CRITICAL
    must_not_match: 'password\s*='
---
`), 0o644))

	templateStore, err := templates.NewStore(templates.WithTemplateDirs(templateDir), templates.WithBuiltinFS(nil))
	require.NoError(t, err)
	checklistStore, err := checklist.NewStore(checklist.WithChecklistDirs(checklistDir), checklist.WithBuiltinFS(nil))
	require.NoError(t, err)

	srv, err := NewServer(&Config{Host: "localhost", Port: 8080}, templateStore, checklistStore)
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, (&Config{Host: "localhost", Port: 8080}).Validate())
	assert.Error(t, (&Config{Host: "", Port: 8080}).Validate())
	assert.Error(t, (&Config{Host: "localhost", Port: 0}).Validate())
	assert.Error(t, (&Config{Host: "localhost", Port: 99999}).Validate())
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestListTemplates(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "GET", "/api/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Templates []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"templates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Templates, 2)
	assert.Equal(t, "commit-prompt", resp.Templates[0].ID)
	assert.Equal(t, "Commit Prompt", resp.Templates[0].Name)
}

func TestGetTemplate(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "GET", "/api/templates/commit-prompt", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ID              string   `json:"id"`
		InsertionPoints []string `json:"insertionPoints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "commit-prompt", resp.ID)
	assert.Equal(t, []string{"diff"}, resp.InsertionPoints)
}

func TestGetTemplate_NotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "GET", "/api/templates/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompose(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/compose", map[string]interface{}{
		"template": "commit-prompt",
		"context":  map[string]string{"diff": "added foo()", "extra": "unused"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp composeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Summarize: added foo()\n", resp.Output)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "extra")
}

func TestCompose_UnboundPoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/compose", map[string]interface{}{
		"template": "commit-prompt",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "diff")
}

func TestCompose_CyclicTemplate(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/compose", map[string]interface{}{
		"template": "cyclic",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "cyclic")
}

func TestCompose_MissingTemplateField(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/compose", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReview(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/review", map[string]interface{}{
		"checklist": "secrets",
		"artifact":  `password = "admin123"`,
		"name":      "deploy.py",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var report review.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, review.StatusBlocked, report.Status)
	assert.Equal(t, 1, report.Counts.Critical)
	assert.Equal(t, "deploy.py", report.Artifact)
}

func TestReview_ChecklistNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/review", map[string]interface{}{
		"checklist": "ghost",
		"artifact":  "text",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
