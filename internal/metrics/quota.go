package metrics

// QuotaDecision records a quota guard outcome.
func QuotaDecision(metric string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	QuotaDecisionsTotal.WithLabelValues(metric, outcome).Inc()
}

// UsageRecorded records an amount added to the ledger.
func UsageRecorded(counter string, amount float64) {
	UsageRecordedTotal.WithLabelValues(counter).Add(amount)
}

// UsageWriteRetried records a retried ledger write.
func UsageWriteRetried(counter string) {
	UsageWriteRetriesTotal.WithLabelValues(counter).Inc()
}

// UsageWriteFailed records a ledger write that exhausted its retries.
func UsageWriteFailed(counter string) {
	UsageWriteFailuresTotal.WithLabelValues(counter).Inc()
}

// Reservation records a reservation lifecycle event.
func Reservation(counter, outcome string) {
	ReservationsTotal.WithLabelValues(counter, outcome).Inc()
}

// AISpend records token usage and estimated cost for one model call.
func AISpend(model string, inputTokens, outputTokens int64, costUSD float64) {
	AITokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	AITokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	AICostUSDTotal.WithLabelValues(model).Add(costUSD)
}
