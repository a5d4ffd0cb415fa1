/*
Package observability records what the call flow engines and document stores do.

Metrics turns engine events and store calls into Prometheus collectors on a
private registry. Aggregate fans one event stream out to several observers, so
a session can feed metrics and a logger at the same time.
*/
package observability
