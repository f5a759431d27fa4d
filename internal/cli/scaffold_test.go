package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/osdl/internal/config"
	"github.com/aretw0/osdl/internal/logging"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaffold(t *testing.T) {
	dir := t.TempDir()

	written, err := Scaffold(dir, false)
	require.NoError(t, err)
	assert.Len(t, written, 4)

	again, err := Scaffold(dir, false)
	require.NoError(t, err)
	assert.Empty(t, again, "existing files are kept")

	cfg := config.Default()
	cfg.PagesDir = filepath.Join(dir, "pages")
	cfg.Fixtures = filepath.Join(dir, "fixtures.json")
	cfg.ActionsFile = filepath.Join(dir, "actions.yaml")
	cfg.SessionDir = filepath.Join(dir, "sessions")
	app, err := NewApp(cfg, logging.NewNop())
	require.NoError(t, err)
	defer app.Close()

	ids, err := app.Loader.ListPages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"catalog", "home"}, ids)

	var buf bytes.Buffer
	err = app.Render(context.Background(), RenderOptions{PageID: "catalog", Settle: true, Format: FormatJSON}, &buf)
	require.NoError(t, err)

	var tree map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &tree))
	assert.Contains(t, buf.String(), "Mug")
	assert.Contains(t, buf.String(), "9.50")

	_, err = os.Stat(filepath.Join(dir, "actions.yaml"))
	assert.NoError(t, err)
}
