package meeting

import (
	"errors"
	"fmt"
)

var (
	ErrMeetingNotFound    = errors.New("meeting not found")
	ErrBlobNotFound       = errors.New("upload blob not found")
	ErrTranscriptNotFound = errors.New("transcript not found")
	ErrArtifactsNotFound  = errors.New("artifacts not found")
	ErrScenarioNotFound   = errors.New("scenario not found")
	ErrClientNotFound     = errors.New("client not found")
	ErrAlreadyValidated   = errors.New("meeting already has a validation decision")
)

// InvalidTransitionError reports a lifecycle move not permitted by the
// transition table (or failing the failed_llm transcript guard).
type InvalidTransitionError struct {
	MeetingID string
	From      Status
	To        Status
	Reason    string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid transition %s -> %s for meeting %s: %s", e.From, e.To, e.MeetingID, e.Reason)
	}
	return fmt.Sprintf("invalid transition %s -> %s for meeting %s", e.From, e.To, e.MeetingID)
}
