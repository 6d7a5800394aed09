package domain

// State is the position of one webhook invocation in the handling pipeline.
type State string

const (
	StateReceived     State = "received"
	StateValidated    State = "validated"
	StateIgnored      State = "ignored"
	StateNotTriggered State = "not_triggered"
	StateTriggered    State = "triggered"
	StateDownloaded   State = "downloaded"
	StateUploaded     State = "uploaded"
	StateReplied      State = "replied"
	StateErrored      State = "errored"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateIgnored, StateNotTriggered, StateReplied, StateErrored:
		return true
	}
	return false
}
