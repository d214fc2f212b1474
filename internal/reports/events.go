package reports

// Event topics published by the reports module.
const (
	// TopicReportGenerated is published after each written report.
	// Payload: *Report.
	TopicReportGenerated = "reports.report.generated"
)
