// Package application holds the admission-control use cases.
//
// It depends only on the domain package and knows nothing about net/http:
//
//   - Registry resolves named policies loaded at startup.
//   - LimiterCache memoizes one Limiter per policy shape.
//   - Service.Consume debits one point and returns a domain.Decision.
//   - AdminService inspects or clears a key's counter state.
//   - ConcurrencyService acquires in-flight slots with a timeout.
package application
