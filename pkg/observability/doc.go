/*
Package observability exposes Prometheus metrics for the tether client.

Metrics are fed through domain.LifecycleHooks, so any controller configured
with Metrics.Hooks() reports its transitions, stream events and run outcomes.
*/
package observability
