package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/common"
	"github.com/ternarybob/amsc/internal/services/browser/browsertest"
	"github.com/ternarybob/amsc/pkg/harness"
)

func TestNew(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Paths.TmpDir = filepath.Join(t.TempDir(), "tmp")
	cfg.Paths.ArtifactsDir = filepath.Join(t.TempDir(), "artifacts")

	a, err := New(cfg, arbor.NewLogger(), harness.WithDriver(browsertest.NewBrowser()))
	require.NoError(t, err)

	assert.Same(t, cfg, a.Config)
	assert.NotNil(t, a.Harness)
	assert.Contains(t, a.Runner.Actions(), "start_transfer")
	assert.NoError(t, a.Close())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Dashboard.URL = ""

	_, err := New(cfg, nil, harness.WithDriver(browsertest.NewBrowser()))
	assert.Error(t, err)
}

func TestClose_WithoutHarness(t *testing.T) {
	assert.NoError(t, (&App{}).Close())
}
