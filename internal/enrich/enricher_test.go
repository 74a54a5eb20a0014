package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"course-catalog/internal/catalog"
)

type fakeFetcher struct {
	text  string
	err   error
	calls int
}

func (f *fakeFetcher) FetchText(ctx context.Context, url string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeModel struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (f *fakeModel) Complete(ctx context.Context, system, user string) (string, error) {
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, user)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var resp string
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, err
}

func validModelJSON() string {
	return `{
		"provider": "Coursera",
		"link": "https://example.com/other",
		"course_name": "Intro to Go",
		"summary": "A practical introduction.",
		"track": "Engineering",
		"platform": "Coursera",
		"hands_on": "Yes",
		"skill_level": "Novice",
		"difficulty": "Low",
		"length": "12 Hours",
		"evidence_of_completion": "Certificate"
	}`
}

func TestEnrichHappyPath(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{text: "Intro to Go on Coursera, 12 hours, certificate included."}
	model := &fakeModel{responses: []string{validModelJSON()}}
	e := NewEnricher(fetcher, model, nil, zap.NewNop(), Config{RequirePage: true})

	course, err := e.Enrich(context.Background(), catalog.EnrichRequest{
		Link: "https://example.com/go-intro",
	})
	require.NoError(t, err)
	require.Equal(t, "https://example.com/go-intro", course.Link, "link must come from the request, not the model")
	require.Equal(t, "Intro to Go", course.CourseName)
	require.Equal(t, "12 Hours", course.Length)
	require.Equal(t, 1, fetcher.calls)
	require.Equal(t, 1, model.calls)
}

func TestEnrichRejectsEmptyLink(t *testing.T) {
	t.Parallel()

	e := NewEnricher(&fakeFetcher{}, &fakeModel{}, nil, zap.NewNop(), Config{})
	_, err := e.Enrich(context.Background(), catalog.EnrichRequest{Link: "   "})
	require.ErrorIs(t, err, catalog.ErrValidation)
}

func TestEnrichFetchFailureFatalWhenPageRequired(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: fmt.Errorf("%w: status 404", catalog.ErrFetch)}
	model := &fakeModel{responses: []string{validModelJSON()}}
	e := NewEnricher(fetcher, model, nil, zap.NewNop(), Config{RequirePage: true})

	_, err := e.Enrich(context.Background(), catalog.EnrichRequest{Link: "https://example.com/x"})
	require.ErrorIs(t, err, catalog.ErrFetch)
	require.Zero(t, model.calls, "model must not be called when the page is required and missing")
}

func TestEnrichFetchFailureDegradesToHints(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: fmt.Errorf("%w: connection refused", catalog.ErrFetch)}
	model := &fakeModel{responses: []string{validModelJSON()}}
	e := NewEnricher(fetcher, model, nil, zap.NewNop(), Config{RequirePage: false})

	course, err := e.Enrich(context.Background(), catalog.EnrichRequest{
		Link:       "https://example.com/x",
		Provider:   "Udemy",
		CourseName: "Go Basics",
	})
	require.NoError(t, err)
	require.Equal(t, 1, model.calls)
	require.Contains(t, model.prompts[0], "No page content is available")
	require.Contains(t, model.prompts[0], "Known provider: Udemy")
	require.Equal(t, "https://example.com/x", course.Link)
}

func TestEnrichHintsFillUnknownFields(t *testing.T) {
	t.Parallel()

	raw := `{
		"provider": "Unknown",
		"course_name": "Unknown",
		"summary": "Unknown",
		"track": "Unknown",
		"platform": "Unknown",
		"hands_on": "Unknown",
		"skill_level": "Unknown",
		"difficulty": "Unknown",
		"length": "0 Hours",
		"evidence_of_completion": "Unknown"
	}`
	fetcher := &fakeFetcher{text: "sparse page"}
	model := &fakeModel{responses: []string{raw}}
	e := NewEnricher(fetcher, model, nil, zap.NewNop(), Config{})

	course, err := e.Enrich(context.Background(), catalog.EnrichRequest{
		Link:       "https://example.com/x",
		Provider:   "Pluralsight",
		CourseName: "Advanced Go",
	})
	require.NoError(t, err)
	require.Equal(t, "Pluralsight", course.Provider)
	require.Equal(t, "Advanced Go", course.CourseName)
	require.Equal(t, catalog.Unknown, course.Summary)
}

func TestEnrichSchemaViolationIsNotRetried(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{text: "page"}
	model := &fakeModel{responses: []string{`{"hands_on": "Maybe"}`, validModelJSON()}}
	e := NewEnricher(fetcher, model, nil, zap.NewNop(), Config{MaxRetries: 2})

	_, err := e.Enrich(context.Background(), catalog.EnrichRequest{Link: "https://example.com/x"})
	require.ErrorIs(t, err, catalog.ErrSchema)
	require.Equal(t, 1, model.calls)
}

func TestEnrichRetriesUpstreamFailures(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{text: "page"}
	model := &fakeModel{
		errs:      []error{fmt.Errorf("%w: status 503", catalog.ErrUpstream), nil},
		responses: []string{"", validModelJSON()},
	}
	e := NewEnricher(fetcher, model, nil, zap.NewNop(), Config{MaxRetries: 2})

	course, err := e.Enrich(context.Background(), catalog.EnrichRequest{Link: "https://example.com/x"})
	require.NoError(t, err)
	require.Equal(t, 2, model.calls)
	require.Equal(t, "Intro to Go", course.CourseName)
}

func TestEnrichGivesUpAfterRetryBudget(t *testing.T) {
	t.Parallel()

	upstream := fmt.Errorf("%w: status 500", catalog.ErrUpstream)
	fetcher := &fakeFetcher{text: "page"}
	model := &fakeModel{errs: []error{upstream, upstream}}
	e := NewEnricher(fetcher, model, nil, zap.NewNop(), Config{MaxRetries: 1})

	_, err := e.Enrich(context.Background(), catalog.EnrichRequest{Link: "https://example.com/x"})
	require.ErrorIs(t, err, catalog.ErrUpstream)
	require.Equal(t, 2, model.calls)
}

func TestEnrichTruncatesPageText(t *testing.T) {
	t.Parallel()

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	fetcher := &fakeFetcher{text: string(long)}
	model := &fakeModel{responses: []string{validModelJSON()}}
	e := NewEnricher(fetcher, model, nil, zap.NewNop(), Config{ContextChars: 100})

	_, err := e.Enrich(context.Background(), catalog.EnrichRequest{Link: "https://example.com/x"})
	require.NoError(t, err)
	require.Less(t, len(model.prompts[0]), 500)
}

func TestEnrichTruncationKeepsRunesIntact(t *testing.T) {
	t.Parallel()

	// Each rune is 3 bytes; a 100-byte budget falls mid-rune.
	page := strings.Repeat("日本語", 40)
	fetcher := &fakeFetcher{text: page}
	model := &fakeModel{responses: []string{validModelJSON()}}
	e := NewEnricher(fetcher, model, nil, zap.NewNop(), Config{ContextChars: 100})

	_, err := e.Enrich(context.Background(), catalog.EnrichRequest{Link: "https://example.com/x"})
	require.NoError(t, err)
	require.True(t, utf8.ValidString(model.prompts[0]), "prompt must not contain a split rune")
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "abc", truncateRunes("abc", 10))
	require.Equal(t, "ab", truncateRunes("abc", 2))
	require.Equal(t, "日", truncateRunes("日本", 4), "cut walks back to the rune start")
	require.Equal(t, "", truncateRunes("日本", 2))
}

func TestRetryPolicyIgnoresCancellation(t *testing.T) {
	t.Parallel()

	p := newRetryPolicy(3)
	require.False(t, p.shouldRetry(context.Canceled, 1))
	require.False(t, p.shouldRetry(errors.New("plain"), 1))
	require.True(t, p.shouldRetry(fmt.Errorf("%w: boom", catalog.ErrUpstream), 1))
	require.False(t, p.shouldRetry(fmt.Errorf("%w: boom", catalog.ErrUpstream), 4))
}
