package meeting

// Status is the lifecycle state of a meeting.
type Status string

const (
	StatusUploaded            Status = "uploaded"
	StatusTranscribing        Status = "transcribing"
	StatusLLMProcessing       Status = "llm_processing"
	StatusReady               Status = "ready"
	StatusValidated           Status = "validated"
	StatusRejected            Status = "rejected"
	StatusFailedTranscription Status = "failed_transcription"
	StatusFailedLLM           Status = "failed_llm"
	StatusFailedSystem        Status = "failed_system"
)

// transitions is the full adjacency map of legal lifecycle moves. Anything
// absent here is rejected. The failed_llm -> llm_processing edge carries an
// extra transcript-existence guard applied by the state machine.
var transitions = map[Status][]Status{
	StatusUploaded:            {StatusTranscribing, StatusFailedSystem},
	StatusTranscribing:        {StatusLLMProcessing, StatusFailedTranscription, StatusFailedSystem},
	StatusLLMProcessing:       {StatusReady, StatusFailedLLM, StatusFailedSystem},
	StatusReady:               {StatusValidated, StatusRejected},
	StatusValidated:           {},
	StatusRejected:            {},
	StatusFailedTranscription: {StatusUploaded},
	StatusFailedLLM:           {StatusLLMProcessing, StatusUploaded},
	StatusFailedSystem:        {StatusUploaded},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Failed reports whether the status is one of the three failure sinks.
func (s Status) Failed() bool {
	return s == StatusFailedTranscription || s == StatusFailedLLM || s == StatusFailedSystem
}

func (s Status) Terminal() bool {
	return s == StatusValidated || s == StatusRejected
}

// FailedStatuses lists the failure sinks, in a fixed order for queries.
func FailedStatuses() []Status {
	return []Status{StatusFailedTranscription, StatusFailedLLM, StatusFailedSystem}
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
