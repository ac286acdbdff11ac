package outbound

// MetricsPort records domain-level counters.
type MetricsPort interface {
	// ObserveWebhook counts a handled webhook by its outcome or error code.
	ObserveWebhook(rail, leg, outcome string)

	// ObserveTransition counts a committed status change.
	ObserveTransition(from, to string)

	// ObserveStatusMismatch counts webhooks whose claimed status the provider contradicted.
	ObserveStatusMismatch(rail, leg string)

	// ObserveProviderRetry counts a retried provider call.
	ObserveProviderRetry(operation string)
}
