package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"course-catalog/internal/catalog"
)

type createCourseRequest struct {
	Link                 string `json:"link"`
	Provider             string `json:"provider"`
	CourseName           string `json:"course_name"`
	Summary              string `json:"summary"`
	Track                string `json:"track"`
	Platform             string `json:"platform"`
	HandsOn              string `json:"hands_on"`
	SkillLevel           string `json:"skill_level"`
	Difficulty           string `json:"difficulty"`
	Length               string `json:"length"`
	EvidenceOfCompletion string `json:"evidence_of_completion"`
}

type updateCourseRequest struct {
	Version              int     `json:"version"`
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

type enrichCourseRequest struct {
	Link       string `json:"link"`
	Provider   string `json:"provider"`
	CourseName string `json:"courseName"`
}

// listCourses handles GET /courses?search=&page=&page_size=&provider=&...
// Filterable fields accept repeated query parameters, matched exactly.
func (s *Server) listCourses(w http.ResponseWriter, r *http.Request) {
	q := catalog.Query{
		Search:  strings.TrimSpace(r.URL.Query().Get("search")),
		Filters: map[string][]string{},
	}
	var err error
	if q.Page, err = intParam(r, "page"); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if q.PageSize, err = intParam(r, "page_size"); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	for _, field := range catalog.FilterableFields {
		if values := r.URL.Query()[field]; len(values) > 0 {
			q.Filters[field] = values
		}
	}

	page, err := s.store.List(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, r, err, "list courses failed")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// createCourse handles POST /courses. The write runs as a task; when it
// finishes within the wait budget the created course is returned with
// 201, otherwise the task is returned with 202 for later polling.
func (s *Server) createCourse(w http.ResponseWriter, r *http.Request) {
	var req createCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Link) == "" || strings.TrimSpace(req.CourseName) == "" {
		writeError(w, http.StatusUnprocessableEntity, "link and course_name are required")
		return
	}

	payload := catalog.TaskPayload{Course: catalog.Course{
		Link:                 req.Link,
		Provider:             req.Provider,
		CourseName:           req.CourseName,
		Summary:              req.Summary,
		Track:                req.Track,
		Platform:             req.Platform,
		HandsOn:              req.HandsOn,
		SkillLevel:           req.SkillLevel,
		Difficulty:           req.Difficulty,
		Length:               req.Length,
		EvidenceOfCompletion: req.EvidenceOfCompletion,
	}}
	s.runTask(w, r, catalog.TaskCreateCourse, payload, http.StatusCreated)
}

// updateCourse handles PUT /courses/{link...}. The link is the wildcard
// remainder of the path; a link query parameter takes precedence since
// proxies sometimes collapse double slashes in paths.
func (s *Server) updateCourse(w http.ResponseWriter, r *http.Request) {
	link := strings.TrimSpace(r.URL.Query().Get("link"))
	if link == "" {
		link = chi.URLParam(r, "*")
	}
	if link == "" {
		writeError(w, http.StatusUnprocessableEntity, "course link is required")
		return
	}

	var req updateCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Version < 1 {
		writeError(w, http.StatusUnprocessableEntity, "version must be a positive integer")
		return
	}
	patch := catalog.CoursePatch{
		Provider:             req.Provider,
		CourseName:           req.CourseName,
		Summary:              req.Summary,
		Track:                req.Track,
		Platform:             req.Platform,
		HandsOn:              req.HandsOn,
		SkillLevel:           req.SkillLevel,
		Difficulty:           req.Difficulty,
		Length:               req.Length,
		EvidenceOfCompletion: req.EvidenceOfCompletion,
	}
	if patch.Empty() {
		writeError(w, http.StatusUnprocessableEntity, "no fields to update")
		return
	}

	payload := catalog.TaskPayload{Link: link, Patch: patch, ExpectedVersion: req.Version}
	s.runTask(w, r, catalog.TaskUpdateCourse, payload, http.StatusOK)
}

// enrichCourse handles POST /courses/enrich. Provider and courseName are
// optional hints carried into the model prompt.
func (s *Server) enrichCourse(w http.ResponseWriter, r *http.Request) {
	var req enrichCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Link) == "" {
		writeError(w, http.StatusUnprocessableEntity, "link is required")
		return
	}

	payload := catalog.TaskPayload{Enrich: catalog.EnrichRequest{
		Link:       req.Link,
		Provider:   req.Provider,
		CourseName: req.CourseName,
	}}
	s.runTask(w, r, catalog.TaskEnrichCourse, payload, http.StatusOK)
}

// getTask handles GET /tasks/{task_id} for polling clients.
func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	task, err := s.runner.GetTask(r.Context(), taskID)
	if err != nil {
		s.writeStoreError(w, r, err, "get task failed")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// runTask submits the work and waits up to the configured budget. A task
// that finishes in time answers with its course (or its error mapped to
// a status); a slow task answers 202 with the task for polling.
func (s *Server) runTask(
	w http.ResponseWriter,
	r *http.Request,
	kind catalog.TaskKind,
	payload catalog.TaskPayload,
	successStatus int,
) {
	task, err := s.runner.Submit(r.Context(), kind, payload)
	if err != nil {
		s.writeStoreError(w, r, err, "task submit failed")
		return
	}

	task, finished, err := s.runner.Await(r.Context(), task.ID, s.cfg.WaitTimeout)
	if err != nil {
		s.writeStoreError(w, r, err, "task await failed")
		return
	}
	if !finished {
		writeJSON(w, http.StatusAccepted, task)
		return
	}
	if task.Status == catalog.TaskStatusFailed {
		writeError(w, statusForKind(task.ErrorKind), task.ErrorText)
		return
	}
	writeJSON(w, successStatus, task.Course)
}

func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(logMsg, zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, catalog.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, catalog.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrDuplicateLink), errors.Is(err, catalog.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrFetch), errors.Is(err, catalog.ErrSchema), errors.Is(err, catalog.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// statusForKind maps a failed task's stored classification to a status.
func statusForKind(kind catalog.ErrorKind) int {
	switch kind {
	case catalog.KindValidation:
		return http.StatusUnprocessableEntity
	case catalog.KindNotFound:
		return http.StatusNotFound
	case catalog.KindDuplicateLink, catalog.KindVersionConflict:
		return http.StatusConflict
	case catalog.KindFetch, catalog.KindSchema, catalog.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
