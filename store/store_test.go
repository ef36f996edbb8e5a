package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-pkgs/taxonomy/internal/core"
)

func sampleState() *core.State {
	return &core.State{
		Packages: []core.PackageInfo{
			{
				Name:        "us-gaap",
				Version:     "2024",
				Description: "US GAAP Financial Reporting Taxonomy",
				Status:      core.StatusEnabled,
				URL:         "https://xbrl.fasb.org/us-gaap/2024/us-gaap-2024.zip",
				FileDate:    "2024-01-01T00:00:00 UTC",
				Remappings: map[string]string{
					"http://fasb.org/us-gaap/2024/": "/cache/us-gaap-2024.zip/us-gaap-2024/",
				},
			},
			{
				Name:     "ifrs",
				Version:  "2023",
				Status:   core.StatusDisabled,
				URL:      "/data/ifrs.zip",
				FileDate: "2023-03-23T10:00:00 UTC",
				Remappings: map[string]string{
					"http://xbrl.ifrs.org/taxonomy/": "/data/ifrs.zip/ifrs/xbrl.ifrs.org/taxonomy/",
				},
			},
		},
		Remappings: map[string]string{
			"http://fasb.org/us-gaap/2024/": "/cache/us-gaap-2024.zip/us-gaap-2024/",
		},
	}
}

func assertSameState(t *testing.T, want, got *core.State) {
	t.Helper()
	require.NotNil(t, got)
	require.Len(t, got.Packages, len(want.Packages))
	for i := range want.Packages {
		assert.True(t, want.Packages[i].Equal(got.Packages[i]), "package %d: want %+v, got %+v", i, want.Packages[i], got.Packages[i])
	}
	assert.Equal(t, want.Remappings, got.Remappings)
}

func TestFileRoundTrip(t *testing.T) {
	for _, name := range []string{"taxonomyPackages.json", "packages.toml", "packages.yaml", "packages.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			f, err := NewFile(path)
			require.NoError(t, err)
			assert.Equal(t, path, f.Path())

			ctx := context.Background()
			require.NoError(t, f.Save(ctx, sampleState()))
			assert.FileExists(t, path)

			got, err := f.Load(ctx)
			require.NoError(t, err)
			assertSameState(t, sampleState(), got)
		})
	}
}

func TestFileLoadMissing(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	state, err := f.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestFileLoadEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o644))
	f, err := NewFile(path)
	require.NoError(t, err)

	state, err := f.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestFileLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	f, err := NewFile(path)
	require.NoError(t, err)

	_, err = f.Load(context.Background())
	assert.Error(t, err)
}

func TestFileLoadDefaultsStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.json")
	body := `{"packages":[{"name":"a","version":"1","URL":"/a.zip","fileDate":"2024-01-01T00:00:00 UTC","remappings":{"http://a/":"/a.zip/a/"}}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	f, err := NewFile(path)
	require.NoError(t, err)

	state, err := f.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, state.Packages, 1)
	assert.Equal(t, core.StatusEnabled, state.Packages[0].Status)
	assert.Equal(t, "/a.zip/a/", state.Packages[0].Remappings["http://a/"])
}

func TestFileJSONKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomyPackages.json")
	f, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Save(context.Background(), sampleState()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{`"packages"`, `"remappings"`, `"URL"`, `"fileDate"`, `"status": "disabled"`} {
		assert.Contains(t, string(data), key)
	}
}

func TestFileCancelledContext(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "p.json"))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, f.Save(ctx, sampleState()), context.Canceled)
	_, err = f.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"a.json", JSON},
		{"a.JSON", JSON},
		{"a.toml", TOML},
		{"a.yaml", YAML},
		{"a.yml", YAML},
	}
	for _, tt := range tests {
		got, err := FormatFor(tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err := FormatFor("a.ini")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = NewFile("noext")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	state, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, state)

	saved := sampleState()
	require.NoError(t, m.Save(ctx, saved))
	assert.Equal(t, 1, m.Saves())

	saved.Packages[0].Remappings["http://mutated/"] = "/x/"
	got, err := m.Load(ctx)
	require.NoError(t, err)
	assertSameState(t, sampleState(), got)

	got.Packages[0].Name = "changed"
	again, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "us-gaap", again.Packages[0].Name)
}
