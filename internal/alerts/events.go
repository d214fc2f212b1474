package alerts

// Event topics published by the alerts module. Payload: *Alert.
const (
	TopicAlertTriggered    = "alerts.alert.triggered"
	TopicAlertAcknowledged = "alerts.alert.acknowledged"
	TopicAlertResolved     = "alerts.alert.resolved"
	TopicAlertSuppressed   = "alerts.alert.suppressed"
)
