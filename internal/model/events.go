package model

// Stage labels for status events, emitted in this order.
const (
	StageAnalyzing  = "analyzing"
	StageSearching  = "searching"
	StageRetrieving = "retrieving"
	StageGenerating = "generating"
	StageFinalizing = "finalizing"
)

// Event types on the query stream. Exactly one of EventDone or EventError
// terminates a stream.
const (
	EventStatus = "status"
	EventTool   = "tool"
	EventChunk  = "chunk"
	EventDone   = "done"
	EventError  = "error"
)

// Event is one ordered emission on the query stream.
type Event struct {
	Type string `json:"-"`

	// status
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`

	// tool
	ToolName string `json:"tool_name,omitempty"`

	// chunk
	Text string `json:"text,omitempty"`

	// done
	Answer *FinalAnswer `json:"-"`
}

// StatusEvent builds a progress marker.
func StatusEvent(stage, message string) Event {
	return Event{Type: EventStatus, Stage: stage, Message: message}
}

// ToolEvent notifies that a tool has been invoked.
func ToolEvent(name string) Event {
	return Event{Type: EventTool, ToolName: name}
}

// DoneEvent terminates the stream successfully.
func DoneEvent(answer *FinalAnswer) Event {
	return Event{Type: EventDone, Answer: answer}
}

// ErrorEvent terminates the stream with a failure message.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}
