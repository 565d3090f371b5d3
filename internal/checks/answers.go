package checks

import (
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"golang.org/x/text/language"
)

// Answers returns the ids of the questions asked during check-in that are
// not satisfied by answers, in question order. A required question needs a
// valid answer; an optional one only has to be valid when it is answered.
func Answers(questions []models.Question, answers []models.Answer) []int64 {
	given := make(map[int64]string, len(answers))
	for _, a := range answers {
		given[a.QuestionID] = strings.TrimSpace(a.Value)
	}

	var missing []int64
	for _, q := range questions {
		if !q.AskDuringCheckIn {
			continue
		}
		value, ok := given[q.ID]
		answered := ok && value != ""

		switch {
		case q.Required && (!answered || !ValidAnswer(q, value)):
			missing = append(missing, q.ID)
		case !q.Required && answered && !ValidAnswer(q, value):
			missing = append(missing, q.ID)
		}
	}
	return missing
}

// ValidAnswer type-checks value against the question type. Booleans are
// "True" or "False" and a required boolean must be "True"; choices are
// option ids, comma separated for multiple choice.
func ValidAnswer(q models.Question, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}

	switch q.Type {
	case models.QuestionNumber:
		_, err := strconv.ParseFloat(value, 64)
		return err == nil

	case models.QuestionString, models.QuestionText, models.QuestionFile:
		return true

	case models.QuestionBoolean:
		if q.Required {
			return value == "True"
		}
		return value == "True" || value == "False"

	case models.QuestionChoice:
		return validOption(q, value)

	case models.QuestionMultipleChoice:
		for _, part := range strings.Split(value, ",") {
			if !validOption(q, strings.TrimSpace(part)) {
				return false
			}
		}
		return true

	case models.QuestionDate:
		_, err := time.Parse(time.DateOnly, value)
		return err == nil

	case models.QuestionTime:
		for _, layout := range []string{"15:04", "15:04:05"} {
			if _, err := time.Parse(layout, value); err == nil {
				return true
			}
		}
		return false

	case models.QuestionDateTime:
		_, err := time.Parse(time.RFC3339, value)
		return err == nil

	case models.QuestionCountryCode:
		_, err := language.ParseRegion(value)
		return err == nil && len(value) == 2

	case models.QuestionPhoneNumber:
		return validPhone(value)
	}
	return true
}

func validOption(q models.Question, value string) bool {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false
	}
	return q.HasOption(id)
}

func validPhone(value string) bool {
	digits := 0
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '+' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 3
}
