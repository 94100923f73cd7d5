package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestScanAll(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.md":         "one",
		"sub/b.md":     "two",
		"sub/c.json":   "{}",
		".hidden.md":   "secret",
		"sub/.also.md": "secret",
	})

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{
			name:   "no filter takes everything",
			filter: Filter{},
			want:   []string{".hidden.md", "a.md", "sub/.also.md", "sub/b.md", "sub/c.json"},
		},
		{
			name:   "extension allow-list",
			filter: Filter{Extensions: []string{".md"}},
			want:   []string{".hidden.md", "a.md", "sub/.also.md", "sub/b.md"},
		},
		{
			name:   "exclude hidden",
			filter: Filter{ExcludeHidden: true},
			want:   []string{"a.md", "sub/b.md", "sub/c.json"},
		},
		{
			name:   "exclude glob",
			filter: Filter{ExcludeGlobs: []string{"*.json"}, ExcludeHidden: true},
			want:   []string{"a.md", "sub/b.md"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScanAll(root, tt.filter)
			require.NoError(t, err)

			var rel []string
			for _, p := range got {
				r, err := filepath.Rel(root, p)
				require.NoError(t, err)
				rel = append(rel, filepath.ToSlash(r))
			}
			assert.ElementsMatch(t, tt.want, rel)
		})
	}
}

func TestScanMaxSize(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"small.md": "ok",
		"big.md":   "0123456789abcdef",
	})

	got, err := ScanAll(root, Filter{MaxSize: 8})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "small.md", filepath.Base(got[0]))
}

func TestScanSkipsHiddenDirectories(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".git/objects/x.md": "blob",
		"real.md":           "ok",
	})

	got, err := ScanAll(root, Filter{ExcludeHidden: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "real.md", filepath.Base(got[0]))
}

func TestScanIsLazy(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.md": "1", "b.md": "2", "c.md": "3", "d.md": "4",
	})

	// Breaking out of the loop must stop the walk without error.
	count := 0
	for _, err := range Scan(root, Filter{}) {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestScanMissingRoot(t *testing.T) {
	_, err := ScanAll(filepath.Join(t.TempDir(), "nope"), Filter{})
	assert.Error(t, err)
}

func TestScanIgnoresSymlinks(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"real.md": "ok"})
	require.NoError(t, os.Symlink(filepath.Join(root, "real.md"), filepath.Join(root, "link.md")))

	got, err := ScanAll(root, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "real.md", filepath.Base(got[0]))
}

func TestFilterAccept(t *testing.T) {
	f := Filter{Extensions: []string{".MD"}, MaxSize: 100, ExcludeHidden: true}

	assert.True(t, f.Accept("note.md", 10))
	assert.False(t, f.Accept(".note.md", 10))
	assert.False(t, f.Accept("note.md", 101))
	assert.False(t, f.Accept("note.txt", 10))
}
