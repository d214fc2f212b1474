package eventlog

// Event topics published by the eventlog module.
const (
	// TopicSessionStarted is published when a monitoring session opens.
	// Payload: *Session.
	TopicSessionStarted = "eventlog.session.started"

	// TopicSessionEnded is published when a monitoring session closes.
	// Payload: *Session.
	TopicSessionEnded = "eventlog.session.ended"

	// TopicEventRecorded is published after each appended detection event.
	// Payload: *DetectionEvent.
	TopicEventRecorded = "eventlog.event.recorded"
)
