// Package approval persists tool calls that are waiting for a human
// decision. A sensitive tool call suspends the conversation here and
// stays pending across restarts until someone decides it.
package approval

import (
	"errors"
	"fmt"
	"time"
)

// Decision kinds a reviewer can make on a pending approval.
const (
	DecisionAccept   = "accept"   // run the tool with its original arguments
	DecisionEdit     = "edit"     // run the tool with edited arguments
	DecisionResponse = "response" // skip the tool; feed the reviewer's text back instead
)

// Statuses of an approval record.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusEdited   = "edited"
	StatusAnswered = "answered"
)

// Approval is a tool call suspended for review.
type Approval struct {
	ID             string
	ConversationID string
	ToolCallID     string
	ToolName       string
	Args           string // original arguments, JSON
	Description    string // human-readable summary shown to the reviewer
	Status         string
	EditedArgs     string // set when decided with edit
	ResponseText   string // set when decided with response
	CreatedAt      time.Time
	DecidedAt      *time.Time
}

// Decision is a reviewer's verdict on a pending approval.
type Decision struct {
	Kind         string
	EditedArgs   string // required for edit
	ResponseText string // required for response
}

// Validate checks that the decision is one of the supported kinds and
// carries the payload that kind requires. Anything else is a hard
// error; there is no lenient fallback for unknown decisions.
func (d Decision) Validate() error {
	switch d.Kind {
	case DecisionAccept:
		return nil
	case DecisionEdit:
		if d.EditedArgs == "" {
			return errors.New("edit decision requires edited arguments")
		}
		return nil
	case DecisionResponse:
		if d.ResponseText == "" {
			return errors.New("response decision requires response text")
		}
		return nil
	default:
		return fmt.Errorf("unsupported decision kind %q", d.Kind)
	}
}

// ErrNotFound is returned when an approval id does not exist.
var ErrNotFound = errors.New("approval not found")

// ErrAlreadyDecided is returned when an approval was already decided.
var ErrAlreadyDecided = errors.New("approval already decided")
