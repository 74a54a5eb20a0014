// Package catalog defines core types shared across subsystems.
package catalog

import (
	"strings"
	"time"
)

// Sentinel values used instead of empty strings for fields the system
// cannot confirm.
const (
	Unknown       = "Unknown"
	UnknownLength = "0 Hours"
)

// Course is one entry in the catalog, keyed by its canonical URL.
type Course struct {
	Link                 string    `json:"link"`
	Provider             string    `json:"provider"`
	CourseName           string    `json:"course_name"`
	Summary              string    `json:"summary"`
	Track                string    `json:"track"`
	Platform             string    `json:"platform"`
	HandsOn              string    `json:"hands_on"`
	SkillLevel           string    `json:"skill_level"`
	Difficulty           string    `json:"difficulty"`
	Length               string    `json:"length"`
	EvidenceOfCompletion string    `json:"evidence_of_completion"`
	Version              int       `json:"version"`
	DateCreated          time.Time `json:"date_created"`
	LastUpdated          time.Time `json:"last_updated"`
}

// Normalize trims every field and replaces absent values with the sentinel
// defaults so downstream display logic has a stable contract.
func (c *Course) Normalize() {
	c.Link = strings.TrimSpace(c.Link)
	c.Provider = defaulted(c.Provider, Unknown)
	c.CourseName = defaulted(c.CourseName, Unknown)
	c.Summary = defaulted(c.Summary, Unknown)
	c.Track = defaulted(c.Track, Unknown)
	c.Platform = defaulted(c.Platform, Unknown)
	c.HandsOn = defaulted(c.HandsOn, Unknown)
	c.SkillLevel = defaulted(c.SkillLevel, Unknown)
	c.Difficulty = defaulted(c.Difficulty, Unknown)
	c.Length = defaulted(c.Length, UnknownLength)
	c.EvidenceOfCompletion = defaulted(c.EvidenceOfCompletion, Unknown)
}

func defaulted(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

// Known reports whether a field value carries real information rather than a
// sentinel placeholder.
func Known(value string) bool {
	value = strings.TrimSpace(value)
	return value != "" && value != Unknown && value != UnknownLength
}

// Merge folds enrichment-derived fields into the receiver. A known stored
// value is never replaced by a sentinel; a sentinel stored value is replaced
// by a known incoming one.
func (c *Course) Merge(incoming Course) {
	merge := func(dst *string, src string) {
		if Known(src) && !Known(*dst) {
			*dst = strings.TrimSpace(src)
		}
	}
	merge(&c.Provider, incoming.Provider)
	merge(&c.CourseName, incoming.CourseName)
	merge(&c.Summary, incoming.Summary)
	merge(&c.Track, incoming.Track)
	merge(&c.Platform, incoming.Platform)
	merge(&c.HandsOn, incoming.HandsOn)
	merge(&c.SkillLevel, incoming.SkillLevel)
	merge(&c.Difficulty, incoming.Difficulty)
	merge(&c.Length, incoming.Length)
	merge(&c.EvidenceOfCompletion, incoming.EvidenceOfCompletion)
}

// CoursePatch carries a partial update; nil fields are left untouched.
type CoursePatch struct {
	Provider             *string `json:"provider"`
	CourseName           *string `json:"course_name"`
	Summary              *string `json:"summary"`
	Track                *string `json:"track"`
	Platform             *string `json:"platform"`
	HandsOn              *string `json:"hands_on"`
	SkillLevel           *string `json:"skill_level"`
	Difficulty           *string `json:"difficulty"`
	Length               *string `json:"length"`
	EvidenceOfCompletion *string `json:"evidence_of_completion"`
}

// Empty reports whether the patch carries no fields at all.
func (p CoursePatch) Empty() bool {
	return p.Provider == nil && p.CourseName == nil && p.Summary == nil &&
		p.Track == nil && p.Platform == nil && p.HandsOn == nil &&
		p.SkillLevel == nil && p.Difficulty == nil && p.Length == nil &&
		p.EvidenceOfCompletion == nil
}

// Apply copies the provided patch fields onto the course.
func (p CoursePatch) Apply(c *Course) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&c.Provider, p.Provider)
	set(&c.CourseName, p.CourseName)
	set(&c.Summary, p.Summary)
	set(&c.Track, p.Track)
	set(&c.Platform, p.Platform)
	set(&c.HandsOn, p.HandsOn)
	set(&c.SkillLevel, p.SkillLevel)
	set(&c.Difficulty, p.Difficulty)
	set(&c.Length, p.Length)
	set(&c.EvidenceOfCompletion, p.EvidenceOfCompletion)
}

// FilterableFields lists the record fields exposed as exact-match filters, in
// the order they appear in list responses.
var FilterableFields = []string{
	"provider",
	"platform",
	"difficulty",
	"skill_level",
	"hands_on",
	"track",
}

// FilterValue returns the course value backing a filterable field name.
func (c Course) FilterValue(field string) string {
	switch field {
	case "provider":
		return c.Provider
	case "platform":
		return c.Platform
	case "difficulty":
		return c.Difficulty
	case "skill_level":
		return c.SkillLevel
	case "hands_on":
		return c.HandsOn
	case "track":
		return c.Track
	default:
		return ""
	}
}

// Query captures the parameters of a course list request.
type Query struct {
	Search   string
	Filters  map[string][]string
	Page     int
	PageSize int
}

// CoursePage is returned by the list endpoint.
type CoursePage struct {
	Items            []Course            `json:"items"`
	Total            int                 `json:"total"`
	Page             int                 `json:"page"`
	PageSize         int                 `json:"pageSize"`
	TotalPages       int                 `json:"totalPages"`
	AvailableFilters map[string][]string `json:"availableFilters"`
}

// EnrichRequest asks the enricher to derive metadata for a course URL.
// Provider and CourseName are optional hints.
type EnrichRequest struct {
	Link       string
	Provider   string
	CourseName string
}

// TaskKind names a unit of background work.
type TaskKind string

// Task kinds executed by the runner.
const (
	TaskCreateCourse TaskKind = "create_course"
	TaskUpdateCourse TaskKind = "update_course"
	TaskEnrichCourse TaskKind = "enrich_course"
)

// TaskStatus represents the lifecycle state of a background task.
type TaskStatus string

// Task status values kept in the task store.
const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// TaskPayload carries the inputs of a unit of work across the queue.
type TaskPayload struct {
	Course          Course
	Link            string
	Patch           CoursePatch
	ExpectedVersion int
	Enrich          EnrichRequest
}

// Task is the metadata persisted for each submitted unit of work.
type Task struct {
	ID        string      `json:"id"`
	Kind      TaskKind    `json:"kind"`
	Status    TaskStatus  `json:"status"`
	Course    *Course     `json:"course,omitempty"`
	ErrorText string      `json:"error_text,omitempty"`
	ErrorKind ErrorKind   `json:"error_kind,omitempty"`
	Submitted time.Time   `json:"submitted_at"`
	Started   *time.Time  `json:"started_at,omitempty"`
	Finished  *time.Time  `json:"finished_at,omitempty"`
	Payload   TaskPayload `json:"-"`
}

// TaskItem wraps a task ready to run on the queue.
type TaskItem struct {
	TaskID  string
	Kind    TaskKind
	Payload TaskPayload
}
