/*
Package resilience provides a circuit breaker for event reporters.

# Overview

A reporter that cannot reach its intake should stop trying for a while
instead of piling requests on a dead endpoint. The breaker opens after a
run of consecutive failures and stays open for a backoff period that grows
quadratically with each reopen (1x, 4x, 9x ... the base, capped).

# Usage

	breaker := resilience.New("intake", resilience.Settings{
		FailureThreshold: 1,
		BaseTimeout:      time.Second,
		MaxTimeout:       36 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Info("breaker", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	if err := breaker.Allow(); err != nil {
		return err // dropped, not retried
	}
	err := send()
	breaker.Record(err)

# Pattern

	Closed --[failures]-> Open --[backoff]-> Half-Open --[trial ok]-> Closed
	                        ^                    |
	                        +----[trial fails]---+
*/
package resilience
