// Package jsonfile implements the course repository on a single JSON array
// file. All writes funnel through one mutex-guarded handle and rewrite the
// file atomically, so concurrent writers can never tear the store.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"course-catalog/internal/catalog"
)

const maxPageSize = 200

// Store is a JSON-file-backed implementation of catalog.Store.
type Store struct {
	mu      sync.RWMutex
	path    string
	clock   catalog.Clock
	logger  *zap.Logger
	courses []catalog.Course
	index   map[string]int
}

// Open loads (or creates) the store at path.
func Open(path string, clock catalog.Clock, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &Store{
		path:   path,
		clock:  clock,
		logger: logger,
		index:  make(map[string]int),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if writeErr := writeAtomic(path, nil); writeErr != nil {
			return nil, writeErr
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}

	var courses []catalog.Course
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &courses); err != nil {
			return nil, fmt.Errorf("decode store %s: %w", path, err)
		}
	}
	for _, c := range courses {
		c.Normalize()
		if c.Link == "" {
			logger.Warn("skipping course without link", zap.String("name", c.CourseName))
			continue
		}
		if _, dup := s.index[c.Link]; dup {
			logger.Warn("skipping duplicate link in store", zap.String("link", c.Link))
			continue
		}
		if c.Version < 1 {
			c.Version = 1
		}
		s.index[c.Link] = len(s.courses)
		s.courses = append(s.courses, c)
	}
	return s, nil
}

// List returns one page of matching courses plus the distinct values
// available for each filterable field.
func (s *Store) List(_ context.Context, q catalog.Query) (catalog.CoursePage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]catalog.Course, 0, len(s.courses))
	for _, c := range s.courses {
		if matches(c, q) {
			matched = append(matched, c)
		}
	}
	sortCourses(matched)

	pageSize := q.PageSize
	if pageSize < 1 {
		pageSize = 25
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	total := len(matched)
	totalPages := 0
	if total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}

	start := 0
	if total > 0 {
		start = (page - 1) * pageSize
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	items := make([]catalog.Course, end-start)
	copy(items, matched[start:end])

	return catalog.CoursePage{
		Items:            items,
		Total:            total,
		Page:             page,
		PageSize:         pageSize,
		TotalPages:       totalPages,
		AvailableFilters: s.availableFiltersLocked(),
	}, nil
}

// Get returns the course stored under link.
func (s *Store) Get(_ context.Context, link string) (catalog.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[strings.TrimSpace(link)]
	if !ok {
		return catalog.Course{}, catalog.ErrNotFound
	}
	return s.courses[pos], nil
}

// Create appends a new course, failing when the link is already present.
func (s *Store) Create(_ context.Context, course catalog.Course) (catalog.Course, error) {
	course.Normalize()
	if course.Link == "" {
		return catalog.Course{}, fmt.Errorf("%w: link is required", catalog.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[course.Link]; exists {
		return catalog.Course{}, fmt.Errorf("%w: %s", catalog.ErrDuplicateLink, course.Link)
	}

	now := s.clock.Now()
	course.Version = 1
	course.DateCreated = now
	course.LastUpdated = now

	next := append(cloneCourses(s.courses), course)
	if err := writeAtomic(s.path, next); err != nil {
		return catalog.Course{}, err
	}
	s.index[course.Link] = len(s.courses)
	s.courses = next
	return course, nil
}

// Update replaces the patched fields of an existing course under an
// optimistic concurrency check.
func (s *Store) Update(
	_ context.Context,
	link string,
	patch catalog.CoursePatch,
	expectedVersion int,
) (catalog.Course, error) {
	if expectedVersion < 1 {
		return catalog.Course{}, fmt.Errorf("%w: version must be >= 1", catalog.ErrValidation)
	}
	if patch.Empty() {
		return catalog.Course{}, fmt.Errorf("%w: no fields provided for update", catalog.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[strings.TrimSpace(link)]
	if !ok {
		return catalog.Course{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, link)
	}
	current := s.courses[pos]
	if current.Version != expectedVersion {
		return catalog.Course{}, fmt.Errorf(
			"%w: stored version %d, expected %d",
			catalog.ErrVersionConflict, current.Version, expectedVersion,
		)
	}

	updated := current
	patch.Apply(&updated)
	updated.Normalize()
	updated.Link = current.Link
	updated.Version = current.Version + 1
	updated.LastUpdated = s.clock.Now()

	next := cloneCourses(s.courses)
	next[pos] = updated
	if err := writeAtomic(s.path, next); err != nil {
		return catalog.Course{}, err
	}
	s.courses = next
	return updated, nil
}

// UpsertFromEnrichment merges model-derived fields into the record stored
// under link, creating it when absent. Known stored values are never
// overwritten by sentinel results.
func (s *Store) UpsertFromEnrichment(
	_ context.Context,
	link string,
	fields catalog.Course,
) (catalog.Course, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return catalog.Course{}, fmt.Errorf("%w: link is required", catalog.ErrValidation)
	}
	fields.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	next := cloneCourses(s.courses)

	pos, exists := s.index[link]
	var result catalog.Course
	if exists {
		result = next[pos]
		result.Merge(fields)
		result.Version++
		result.LastUpdated = now
		next[pos] = result
	} else {
		result = fields
		result.Link = link
		result.Version = 1
		result.DateCreated = now
		result.LastUpdated = now
		next = append(next, result)
	}

	if err := writeAtomic(s.path, next); err != nil {
		return catalog.Course{}, err
	}
	if !exists {
		s.index[link] = len(s.courses)
	}
	s.courses = next
	return result, nil
}

// Export writes the full store to another JSON file.
func (s *Store) Export(_ context.Context, path string) error {
	s.mu.RLock()
	courses := cloneCourses(s.courses)
	s.mu.RUnlock()

	sortCourses(courses)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	return writeAtomic(path, courses)
}

// Len reports the number of stored courses.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.courses)
}

func (s *Store) availableFiltersLocked() map[string][]string {
	filters := make(map[string][]string, len(catalog.FilterableFields))
	for _, field := range catalog.FilterableFields {
		seen := make(map[string]struct{})
		var values []string
		for _, c := range s.courses {
			v := c.FilterValue(field)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
		sort.Slice(values, func(i, j int) bool {
			return strings.ToLower(values[i]) < strings.ToLower(values[j])
		})
		filters[field] = values
	}
	return filters
}

func matches(c catalog.Course, q catalog.Query) bool {
	if search := strings.ToLower(strings.TrimSpace(q.Search)); search != "" {
		haystacks := []string{c.CourseName, c.Summary, c.Provider, c.Platform, c.Track}
		found := false
		for _, h := range haystacks {
			if strings.Contains(strings.ToLower(h), search) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for field, wanted := range q.Filters {
		wanted = trimNonEmpty(wanted)
		if len(wanted) == 0 {
			continue
		}
		value := c.FilterValue(field)
		matched := false
		for _, w := range wanted {
			if value == w {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func trimNonEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func sortCourses(courses []catalog.Course) {
	sort.SliceStable(courses, func(i, j int) bool {
		a := strings.ToLower(courses[i].CourseName)
		b := strings.ToLower(courses[j].CourseName)
		if a != b {
			return a < b
		}
		return courses[i].Link < courses[j].Link
	})
}

func cloneCourses(src []catalog.Course) []catalog.Course {
	dst := make([]catalog.Course, len(src))
	copy(dst, src)
	return dst
}

// writeAtomic serializes courses to a sibling temp file and renames it over
// path so readers never observe a partial write.
func writeAtomic(path string, courses []catalog.Course) error {
	if courses == nil {
		courses = []catalog.Course{}
	}
	payload, err := json.MarshalIndent(courses, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	payload = append(payload, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".courses-*.json")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()           //nolint:errcheck,gosec // write error takes precedence
		os.Remove(tmpName)    //nolint:errcheck,gosec // best-effort cleanup
		return fmt.Errorf("write temp store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck,gosec // best-effort cleanup
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck,gosec // best-effort cleanup
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
