package models

// QuestionType is the answer type of a Question.
type QuestionType string

const (
	QuestionNumber         QuestionType = "N"
	QuestionString         QuestionType = "S"
	QuestionText           QuestionType = "T"
	QuestionBoolean        QuestionType = "B"
	QuestionChoice         QuestionType = "C"
	QuestionMultipleChoice QuestionType = "M"
	QuestionFile           QuestionType = "F"
	QuestionDate           QuestionType = "D"
	QuestionTime           QuestionType = "H"
	QuestionDateTime       QuestionType = "W"
	QuestionCountryCode    QuestionType = "CC"
	QuestionPhoneNumber    QuestionType = "TEL"
)

// QuestionOption is a selectable answer of a choice question.
type QuestionOption struct {
	ID         int64              `json:"id"`
	Identifier string             `json:"identifier"`
	Answer     MultiLingualString `json:"answer"`
}

// Question is a data field collected from attendees.
type Question struct {
	ID               int64              `json:"id"`
	EventSlug        string             `json:"event"`
	Identifier       string             `json:"identifier"`
	Text             MultiLingualString `json:"question"`
	Type             QuestionType       `json:"type"`
	Required         bool               `json:"required"`
	AskDuringCheckIn bool               `json:"ask_during_checkin"`
	Position         int                `json:"position"`
	Options          []QuestionOption   `json:"options,omitempty"`
	ItemIDs          []int64            `json:"items"`
}

// HasOption reports whether id is one of the question's options.
func (q Question) HasOption(id int64) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Answer is an attendee's value for a question, in its wire form.
type Answer struct {
	QuestionID int64  `json:"question" cbor:"1,keyasint"`
	Value      string `json:"answer" cbor:"2,keyasint"`
}
