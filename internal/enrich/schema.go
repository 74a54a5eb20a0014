package enrich

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"course-catalog/internal/catalog"
)

// modelFields mirrors the fixed output schema the model is instructed to
// produce. Every field admits the explicit "Unknown" sentinel.
type modelFields struct {
	Provider             string `json:"provider"`
	Link                 string `json:"link"`
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

var (
	handsOnValues    = []string{"Yes", "No", catalog.Unknown}
	skillLevelValues = []string{"Novice", "Intermediate", "Expert", "Master", catalog.Unknown}
	difficultyValues = []string{"Low", "Medium", "High", catalog.Unknown}
	lengthPattern    = regexp.MustCompile(`^\d+ Hours$`)
)

// parseModelFields validates the raw model response against the schema and
// converts it into a normalized course. Any violation yields
// catalog.ErrSchema; nothing partial escapes.
func parseModelFields(raw string) (catalog.Course, error) {
	var fields modelFields
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return catalog.Course{}, fmt.Errorf("%w: not a JSON object: %v", catalog.ErrSchema, err)
	}

	course := catalog.Course{
		Provider:             fields.Provider,
		Link:                 fields.Link,
		CourseName:           fields.CourseName,
		Summary:              fields.Summary,
		Track:                fields.Track,
		Platform:             fields.Platform,
		HandsOn:              fields.HandsOn,
		SkillLevel:           fields.SkillLevel,
		Difficulty:           fields.Difficulty,
		Length:               fields.Length,
		EvidenceOfCompletion: fields.EvidenceOfCompletion,
	}
	course.Normalize()

	if err := requireOneOf("hands_on", course.HandsOn, handsOnValues); err != nil {
		return catalog.Course{}, err
	}
	if err := requireOneOf("skill_level", course.SkillLevel, skillLevelValues); err != nil {
		return catalog.Course{}, err
	}
	if err := requireOneOf("difficulty", course.Difficulty, difficultyValues); err != nil {
		return catalog.Course{}, err
	}
	if !lengthPattern.MatchString(course.Length) {
		return catalog.Course{}, fmt.Errorf(
			"%w: length %q does not match \"N Hours\"", catalog.ErrSchema, course.Length,
		)
	}
	return course, nil
}

func requireOneOf(field, value string, allowed []string) error {
	for _, v := range allowed {
		if value == v {
			return nil
		}
	}
	return fmt.Errorf(
		"%w: %s %q not in [%s]",
		catalog.ErrSchema, field, value, strings.Join(allowed, ", "),
	)
}
