// Package specstore reads phase documents for features laid out as
// <root>/<feature>/{requirements,design,tasks}.md.
package specstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/document"
	"github.com/fyrsmithlabs/specd/internal/sanitize"
)

var (
	// ErrFeatureNotFound indicates the feature has no directory under
	// the specs root.
	ErrFeatureNotFound = errors.New("feature not found")

	// ErrDocumentNotFound indicates the feature directory exists but
	// the requested phase document does not.
	ErrDocumentNotFound = errors.New("document not found")
)

var fileNames = map[document.Type]string{
	document.TypeRequirements: "requirements.md",
	document.TypeDesign:       "design.md",
	document.TypeTasks:        "tasks.md",
}

// FeatureDocuments holds whichever phase documents a feature has on
// disk, keyed by document type.
type FeatureDocuments struct {
	Feature   string
	Documents map[document.Type]string
}

// Store reads phase documents from a specs directory. All access is
// confined to the configured root.
type Store struct {
	root   string
	logger *zap.Logger
}

// New creates a Store rooted at dir. The directory does not have to
// exist yet; a watcher may be pointed at it before the first feature
// is written.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("specs directory is required")
	}
	abs, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return nil, fmt.Errorf("resolve specs directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{root: abs, logger: logger}, nil
}

// Root returns the absolute specs directory.
func (s *Store) Root() string {
	return s.root
}

// DocumentPath returns the on-disk path for a feature's phase
// document after validating the feature name and path confinement.
func (s *Store) DocumentPath(feature string, docType document.Type) (string, error) {
	name, ok := fileNames[docType]
	if !ok {
		return "", fmt.Errorf("unknown document type %q", docType)
	}
	dir, err := s.featureDir(feature)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// LoadDocument reads one phase document for a feature.
func (s *Store) LoadDocument(ctx context.Context, feature string, docType document.Type) (string, error) {
	path, err := s.DocumentPath(feature, docType)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s/%s: %w", feature, docType, ErrDocumentNotFound)
		}
		return "", fmt.Errorf("read %s document for %s: %w", docType, feature, err)
	}
	return string(data), nil
}

// LoadFeature reads every phase document the feature has. Missing
// documents are simply absent from the result; a missing feature
// directory is an error.
func (s *Store) LoadFeature(ctx context.Context, feature string) (*FeatureDocuments, error) {
	dir, err := s.featureDir(feature)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", feature, ErrFeatureNotFound)
	}

	docs := &FeatureDocuments{
		Feature:   feature,
		Documents: make(map[document.Type]string),
	}
	for _, docType := range document.Types() {
		content, err := s.LoadDocument(ctx, feature, docType)
		if errors.Is(err, ErrDocumentNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs.Documents[docType] = content
	}
	return docs, nil
}

// ListFeatures returns the feature directories under the root, sorted
// by name. Entries that are not valid feature names are skipped. A
// missing root yields an empty list.
func (s *Store) ListFeatures(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read specs directory: %w", err)
	}

	var features []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := sanitize.ValidateFeatureName(e.Name()); err != nil {
			s.logger.Debug("skipping non-feature directory", zap.String("name", e.Name()))
			continue
		}
		features = append(features, e.Name())
	}
	sort.Strings(features)
	return features, nil
}

// Resolve maps an absolute file path back to the feature and document
// type it belongs to. It reports ok=false for paths outside the root
// or not shaped like a phase document.
func (s *Store) Resolve(path string) (feature string, docType document.Type, ok bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", false
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", false
	}

	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 {
		return "", "", false
	}
	if err := sanitize.ValidateFeatureName(parts[0]); err != nil {
		return "", "", false
	}
	for dt, name := range fileNames {
		if parts[1] == name {
			return parts[0], dt, true
		}
	}
	return "", "", false
}

func (s *Store) featureDir(feature string) (string, error) {
	if err := sanitize.ValidateFeatureName(feature); err != nil {
		return "", fmt.Errorf("feature name %q: %w", feature, err)
	}
	dir := filepath.Join(s.root, feature)
	if _, err := sanitize.ValidatePath(dir, s.root); err != nil {
		return "", fmt.Errorf("feature directory %q: %w", feature, err)
	}
	return dir, nil
}
