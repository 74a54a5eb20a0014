package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"course-catalog/internal/catalog"
	"course-catalog/internal/metrics"
	"course-catalog/internal/policy/ratelimit"
)

const systemPrompt = "You are a meticulous course catalog curator. " +
	"Given the text of a course landing page, extract structured metadata about the course. " +
	"Respond with a single JSON object and nothing else. " +
	"When a value cannot be determined from the page, use \"Unknown\" " +
	"(or \"0 Hours\" for the length field). Never invent details."

// Config controls enrichment behavior.
type Config struct {
	// ContextChars caps how much page text is sent to the model.
	ContextChars int
	// MaxRetries is the number of retries after the first model attempt.
	MaxRetries int
	// RequirePage makes a failed page fetch fatal instead of degrading
	// to a hints-only prompt.
	RequirePage bool
}

// Enricher fetches a course page and asks a model to fill in the
// catalog fields.
type Enricher struct {
	fetcher catalog.PageFetcher
	model   catalog.ModelClient
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	cfg     Config
	retry   retryPolicy
}

func NewEnricher(fetcher catalog.PageFetcher, model catalog.ModelClient, limiter *ratelimit.Limiter, logger *zap.Logger, cfg Config) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContextChars <= 0 {
		cfg.ContextChars = 6000
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Enricher{
		fetcher: fetcher,
		model:   model,
		limiter: limiter,
		logger:  logger,
		cfg:     cfg,
		retry:   newRetryPolicy(cfg.MaxRetries),
	}
}

// Enrich resolves the course metadata for req.Link. The returned course
// always carries req.Link and never loses a known hint to an Unknown
// model answer.
func (e *Enricher) Enrich(ctx context.Context, req catalog.EnrichRequest) (catalog.Course, error) {
	link := strings.TrimSpace(req.Link)
	if link == "" {
		return catalog.Course{}, fmt.Errorf("%w: link is required", catalog.ErrValidation)
	}
	start := time.Now()

	pageText, err := e.fetchPage(ctx, link)
	if err != nil {
		if e.cfg.RequirePage {
			return catalog.Course{}, err
		}
		e.logger.Warn("page fetch failed, enriching from hints only",
			zap.String("link", link),
			zap.Error(err))
		pageText = ""
	}
	pageText = truncateRunes(pageText, e.cfg.ContextChars)

	userPrompt := buildUserPrompt(link, req, pageText)

	raw, err := e.complete(ctx, userPrompt)
	if err != nil {
		return catalog.Course{}, err
	}

	course, err := parseModelFields(raw)
	if err != nil {
		e.logger.Warn("model returned malformed course fields",
			zap.String("link", link),
			zap.Error(err))
		return catalog.Course{}, err
	}

	applyHints(&course, req)
	course.Link = link
	metrics.ObserveEnrichment(time.Since(start))
	return course, nil
}

func (e *Enricher) fetchPage(ctx context.Context, link string) (string, error) {
	if e.fetcher == nil {
		return "", fmt.Errorf("%w: no page fetcher configured", catalog.ErrFetch)
	}
	text, err := e.fetcher.FetchText(ctx, link)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (e *Enricher) complete(ctx context.Context, userPrompt string) (string, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		raw, err := e.model.Complete(ctx, systemPrompt, userPrompt)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !e.retry.shouldRetry(err, attempt) {
			return "", lastErr
		}
		delay := e.retry.backoff(attempt)
		e.logger.Warn("model call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if err := sleep(ctx, delay); err != nil {
			return "", lastErr
		}
	}
}

func buildUserPrompt(link string, req catalog.EnrichRequest, pageText string) string {
	var b strings.Builder
	b.WriteString("Extract the course metadata as a JSON object with exactly these keys:\n")
	b.WriteString(`"provider", "course_name", "summary", "track", "platform", ` +
		`"hands_on", "skill_level", "difficulty", "length", "evidence_of_completion"` + "\n\n")
	b.WriteString("Allowed values:\n")
	b.WriteString(`- hands_on: "Yes", "No" or "Unknown"` + "\n")
	b.WriteString(`- skill_level: "Novice", "Intermediate", "Expert", "Master" or "Unknown"` + "\n")
	b.WriteString(`- difficulty: "Low", "Medium", "High" or "Unknown"` + "\n")
	b.WriteString(`- length: a string matching "<number> Hours", or "0 Hours" when unknown` + "\n\n")
	b.WriteString("Course link: ")
	b.WriteString(link)
	b.WriteString("\n")
	if provider := strings.TrimSpace(req.Provider); provider != "" {
		b.WriteString("Known provider: ")
		b.WriteString(provider)
		b.WriteString("\n")
	}
	if name := strings.TrimSpace(req.CourseName); name != "" {
		b.WriteString("Known course name: ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	if pageText != "" {
		b.WriteString("\nPage content:\n")
		b.WriteString(pageText)
	} else {
		b.WriteString("\nNo page content is available. Use the link and known fields.")
	}
	return b.String()
}

// truncateRunes caps s at limit bytes without splitting a UTF-8 rune
// at the boundary.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// applyHints restores caller-supplied fields the model left unknown.
func applyHints(course *catalog.Course, req catalog.EnrichRequest) {
	if !catalog.Known(course.Provider) && strings.TrimSpace(req.Provider) != "" {
		course.Provider = strings.TrimSpace(req.Provider)
	}
	if !catalog.Known(course.CourseName) && strings.TrimSpace(req.CourseName) != "" {
		course.CourseName = strings.TrimSpace(req.CourseName)
	}
}
