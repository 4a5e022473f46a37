package events

// Topic constants for domain events emitted by the platform.
const (
	TopicEstimateCreated   = "estimate.created"
	TopicEstimateSent      = "estimate.sent"
	TopicEstimateAccepted  = "estimate.accepted"
	TopicEstimateExpired   = "estimate.expired"
	TopicEstimateCancelled = "estimate.cancelled"
)

// DefaultTopics returns the canonical list of topics that support webhooks.
func DefaultTopics() []string {
	return []string{
		TopicEstimateCreated,
		TopicEstimateSent,
		TopicEstimateAccepted,
		TopicEstimateExpired,
		TopicEstimateCancelled,
	}
}
