package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starflow/internal/config"
	"starflow/internal/testutil"
	"starflow/internal/ui"
	"starflow/pkg/errors"
	"starflow/pkg/models"
)

type fakeWizard struct {
	result *ui.WizardResult
	err    error
	base   *models.Config
	ran    bool
}

func (f *fakeWizard) Run(base *models.Config) (*ui.WizardResult, error) {
	f.ran = true
	f.base = base
	return f.result, f.err
}

func withWizard(t *testing.T, w *fakeWizard) {
	t.Helper()
	prev := newWizard
	newWizard = func() profileWizard { return w }
	t.Cleanup(func() { newWizard = prev })
}

func TestSetupWritesProfile(t *testing.T) {
	inTempDir(t)
	cfg := testutil.SparkifyConfig()
	w := &fakeWizard{result: &ui.WizardResult{Config: cfg}}
	withWizard(t, w)

	out, err := execute(t, "setup")
	require.NoError(t, err)
	assert.Contains(t, out, "Profile written to dwh.cfg")
	assert.Nil(t, w.base)

	loaded, err := config.Load("dwh.cfg")
	require.NoError(t, err)
	assert.Equal(t, cfg.Cluster.Host, loaded.Cluster.Host)
	assert.Equal(t, cfg.Cluster.DBPassword, loaded.Cluster.DBPassword)
	assert.Equal(t, cfg.S3.LogJSONPath, loaded.S3.LogJSONPath)
	assert.Equal(t, cfg.GCP.Project, loaded.GCP.Project)
}

func TestSetupOverwriteDeclined(t *testing.T) {
	dir := inTempDir(t)
	path := testutil.NewTestHelper(t).WriteFile(dir, "dwh.cfg", testutil.SampleProfile)
	w := &fakeWizard{result: &ui.WizardResult{Config: testutil.SparkifyConfig()}}
	withWizard(t, w)
	asked := withConfirm(t, false)

	out, err := execute(t, "setup", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Setup cancelled")
	assert.Len(t, *asked, 1)
	assert.False(t, w.ran)
}

func TestSetupPrefillsFromExistingProfile(t *testing.T) {
	dir := inTempDir(t)
	path := testutil.NewTestHelper(t).WriteFile(dir, "aws.cfg", testutil.SampleProfile)
	w := &fakeWizard{result: &ui.WizardResult{Config: testutil.SparkifyConfig()}}
	withWizard(t, w)
	asked := withConfirm(t, false)

	_, err := execute(t, "--config", path, "setup", "--force")
	require.NoError(t, err)
	assert.Empty(t, *asked)
	require.NotNil(t, w.base)
	assert.Equal(t, "movies-123", w.base.GCP.Project)
}

func TestSetupWizardCancelled(t *testing.T) {
	dir := inTempDir(t)
	withWizard(t, &fakeWizard{err: errors.New(errors.ErrCodeInvalidInput, "Setup cancelled")})

	_, err := execute(t, "setup")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))
	assert.NoFileExists(t, filepath.Join(dir, "dwh.cfg"))
}
