package scanner

import (
	"github.com/lyallcooper/reclaim/internal/types"
)

// EventType names a task event. The names double as SSE event names.
type EventType string

const (
	EventProgress      EventType = "progress"
	EventFound         EventType = "found"
	EventAgentCall     EventType = "agent_call"
	EventAgentResponse EventType = "agent_response"
	EventDone          EventType = "done"
	EventError         EventType = "error"
	EventStopped       EventType = "stopped"
)

// Terminal reports whether the event ends the stream.
func (t EventType) Terminal() bool {
	return t == EventDone || t == EventError || t == EventStopped
}

// Exchange kinds reported in AgentCall and AgentResponse.
const (
	KindClassify = "classify"
	KindVerify   = "verify"
)

// Verification outcomes used as the tally key of a verify response.
const (
	TallyVerifiedSafe = "verified_safe"
	TallyRejected     = "verification_rejected"
)

// Event is one notification from a task. Exactly one payload field is set
// for each type: Snapshot for progress and terminal events, Item for found,
// Call and Response for the agent pair. Error events also carry Snapshot.
type Event struct {
	Type     EventType
	Snapshot *types.Snapshot
	Item     *types.DeletableItem
	Call     *AgentCall
	Response *AgentResponse
	Error    string
}

// ErrorPayload is the wire shape of an error event.
type ErrorPayload struct {
	Message  string          `json:"message"`
	Snapshot *types.Snapshot `json:"snapshot"`
}

// Payload returns the value transports should encode for the event.
func (e Event) Payload() any {
	switch e.Type {
	case EventFound:
		return e.Item
	case EventAgentCall:
		return e.Call
	case EventAgentResponse:
		return e.Response
	case EventError:
		return ErrorPayload{Message: e.Error, Snapshot: e.Snapshot}
	default:
		return e.Snapshot
	}
}

// EntrySummary is the part of an entry shown in call notifications.
type EntrySummary struct {
	Name string     `json:"name"`
	Kind types.Kind `json:"type"`
	Size int64      `json:"size"`
}

// AgentCall is emitted before a classification or verification exchange.
type AgentCall struct {
	Kind       string         `json:"kind"`
	BatchIndex int            `json:"batchIndex,omitempty"`
	BatchCount int            `json:"batchCount,omitempty"`
	BatchSize  int            `json:"batchSize"`
	DirPath    string         `json:"dirPath"`
	Depth      int            `json:"depth"`
	Target     string         `json:"target,omitempty"`
	Entries    []EntrySummary `json:"entries"`
}

// AgentResponse is emitted after the exchange announced by an AgentCall.
type AgentResponse struct {
	Kind            string           `json:"kind"`
	DirPath         string           `json:"dirPath"`
	Model           string           `json:"model"`
	ElapsedMS       int64            `json:"elapsed"`
	Reasoning       string           `json:"reasoning"`
	RawContent      string           `json:"rawContent"`
	UserPrompt      string           `json:"userPrompt"`
	Error           string           `json:"error,omitempty"`
	TokenUsage      types.TokenUsage `json:"tokenUsage"`
	ResultsCount    int              `json:"resultsCount"`
	Classifications map[string]int   `json:"classifications"`
	Reason          string           `json:"reason,omitempty"`
}

func summaries(entries []types.Entry) []EntrySummary {
	out := make([]EntrySummary, len(entries))
	for i, e := range entries {
		out[i] = EntrySummary{Name: e.Name, Kind: e.Kind, Size: e.Size}
	}
	return out
}

// subscriber wraps a channel with safe close handling. All access happens
// under the owning task's lock.
type subscriber struct {
	ch     chan Event
	closed bool
}

func newSubscriber(size int) *subscriber {
	return &subscriber{ch: make(chan Event, size)}
}

func (sub *subscriber) close() {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
}

// send delivers ev without blocking. It reports false when the buffer is
// full; the caller must then drop the subscriber rather than skip the event.
func (sub *subscriber) send(ev Event) bool {
	if sub.closed {
		return false
	}
	select {
	case sub.ch <- ev:
		return true
	default:
		return false
	}
}
