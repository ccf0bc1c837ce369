package specstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/specd/internal/document"
	"github.com/fyrsmithlabs/specd/internal/sanitize"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := New(root, nil)
	require.NoError(t, err)
	return store, root
}

func writeDoc(t *testing.T, root, feature, name, content string) {
	t.Helper()
	dir := filepath.Join(root, feature)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestNew_RequiresDirectory(t *testing.T) {
	_, err := New("", nil)
	assert.Error(t, err)
}

func TestLoadDocument(t *testing.T) {
	store, root := newTestStore(t)
	writeDoc(t, root, "user-auth", "requirements.md", "# Requirements Document\n")

	content, err := store.LoadDocument(context.Background(), "user-auth", document.TypeRequirements)
	require.NoError(t, err)
	assert.Equal(t, "# Requirements Document\n", content)
}

func TestLoadDocument_Missing(t *testing.T) {
	store, root := newTestStore(t)
	writeDoc(t, root, "user-auth", "requirements.md", "# Requirements Document\n")

	_, err := store.LoadDocument(context.Background(), "user-auth", document.TypeDesign)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestLoadDocument_RejectsBadFeatureNames(t *testing.T) {
	store, _ := newTestStore(t)

	for _, name := range []string{"", "User Auth", "../escape", "a/b", "dot.name"} {
		_, err := store.LoadDocument(context.Background(), name, document.TypeRequirements)
		assert.ErrorIs(t, err, sanitize.ErrInvalidFeatureName, "name %q", name)
	}
}

func TestLoadDocument_UnknownType(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.LoadDocument(context.Background(), "user-auth", document.Type("memo"))
	assert.ErrorContains(t, err, "unknown document type")
}

func TestLoadFeature(t *testing.T) {
	store, root := newTestStore(t)
	writeDoc(t, root, "user-auth", "requirements.md", "# Requirements Document\n")
	writeDoc(t, root, "user-auth", "design.md", "# Design Document\n")

	docs, err := store.LoadFeature(context.Background(), "user-auth")
	require.NoError(t, err)
	assert.Equal(t, "user-auth", docs.Feature)
	assert.Len(t, docs.Documents, 2)
	assert.Contains(t, docs.Documents, document.TypeRequirements)
	assert.Contains(t, docs.Documents, document.TypeDesign)
	assert.NotContains(t, docs.Documents, document.TypeTasks)
}

func TestLoadFeature_Missing(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.LoadFeature(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrFeatureNotFound)
}

func TestListFeatures(t *testing.T) {
	store, root := newTestStore(t)
	writeDoc(t, root, "zeta", "requirements.md", "x")
	writeDoc(t, root, "alpha", "requirements.md", "x")
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".hidden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0o644))

	features, err := store.ListFeatures(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, features)
}

func TestListFeatures_MissingRoot(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "not-yet"), nil)
	require.NoError(t, err)

	features, err := store.ListFeatures(context.Background())
	require.NoError(t, err)
	assert.Empty(t, features)
}

func TestResolve(t *testing.T) {
	store, root := newTestStore(t)

	feature, docType, ok := store.Resolve(filepath.Join(root, "user-auth", "tasks.md"))
	require.True(t, ok)
	assert.Equal(t, "user-auth", feature)
	assert.Equal(t, document.TypeTasks, docType)

	_, _, ok = store.Resolve(filepath.Join(root, "user-auth", "notes.md"))
	assert.False(t, ok, "unknown file name")

	_, _, ok = store.Resolve(filepath.Join(root, "user-auth", "sub", "requirements.md"))
	assert.False(t, ok, "nested too deep")

	_, _, ok = store.Resolve(filepath.Join(root, "..", "elsewhere", "requirements.md"))
	assert.False(t, ok, "outside the root")

	_, _, ok = store.Resolve(filepath.Join(root, "requirements.md"))
	assert.False(t, ok, "missing feature component")
}

func TestDocumentPath(t *testing.T) {
	store, root := newTestStore(t)

	path, err := store.DocumentPath("user-auth", document.TypeDesign)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root(), "user-auth", "design.md"), path)
	assert.Contains(t, path, filepath.Base(root))
}
