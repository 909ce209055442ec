package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"starflow/internal/common"
	"starflow/internal/ui"
)

// SampleProfile is a complete dwh.cfg style profile.
const SampleProfile = `[CLUSTER]
HOST = sparkify.abc123.us-west-2.redshift.amazonaws.com
DB_NAME = dev
DB_USER = awsuser
DB_PASSWORD = Passw0rd
DB_PORT = 5439

[IAM_ROLE]
ARN = arn:aws:iam::123456789012:role/dwhRole

[S3]
LOG_DATA = s3://udacity-dend/log_data
LOG_JSONPATH = s3://udacity-dend/log_json_path.json
SONG_DATA = s3://udacity-dend/song_data

[GCP]
PROJECT = movies-123
SERVICE_ACCOUNT_PATH = /keys/sa.json

[LAKE]
INPUT = s3a://udacity-dend/
OUTPUT = ./lake
`

// TestHelper provides common test utilities
type TestHelper struct {
	t *testing.T
}

// NewTestHelper creates a new test helper
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// WriteFile writes content to a file in the given directory
func (h *TestHelper) WriteFile(dir, filename, content string) string {
	h.t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(filename))

	if err := os.MkdirAll(filepath.Dir(path), common.DirPermissionNormal); err != nil {
		h.t.Fatalf("Failed to create directories: %v", err)
	}

	if err := os.WriteFile(path, []byte(content), common.FilePermissionSecure); err != nil {
		h.t.Fatalf("Failed to write file %s: %v", path, err)
	}

	return path
}

// WriteProfile writes an INI profile into a fresh temp dir and returns its path.
func (h *TestHelper) WriteProfile(content string) string {
	h.t.Helper()
	return h.WriteFile(h.t.TempDir(), "dwh.cfg", content)
}

// CaptureOutput collects everything the ui package prints while f runs.
// Colors are disabled for the duration.
func (h *TestHelper) CaptureOutput(f func()) string {
	var buf bytes.Buffer
	prev := ui.Output
	ui.Output = &buf
	ui.SetColor(false)
	defer func() { ui.Output = prev }()

	f()
	return buf.String()
}

// Chdir switches the working directory for the rest of the test.
func (h *TestHelper) Chdir(dir string) {
	h.t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		h.t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		h.t.Fatalf("Failed to change directory: %v", err)
	}
	h.t.Cleanup(func() { _ = os.Chdir(prev) })
}
