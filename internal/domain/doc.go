/*
Package domain contains the core entities of the load balancer simulator.

Key Components:

Server Entity:
Server is one simulated backend. Its health evolves under the health monitor,
latency and packet loss are derived from health and load, and only online
servers with health of at least 50 are eligible for routing.

	server := domain.NewServer(1, domain.DefaultMaxConnections, time.Now())
	server.SetHealth(42)
	server.RecomputeMetrics()
	if !server.IsEligible() {
		// excluded from routing
	}

Health Bands:
Health values are classified as EXCELLENT (>=90), GOOD (>=75), WARNING (>=50)
or CRITICAL. Each band maps to the severity used in the event log:

	band := domain.BandFor(server.Health)
	severity := band.Severity()

Routing Policies:
RoutingPolicy implementations select from the eligible set produced by
EligibleServerFilter. Algorithm names are normalized with ParseAlgorithm;
unknown names fall back to round robin.

Snapshots:
Snapshot and LogEntry are value types handed to the presentation layer. They
never alias simulator state.
*/
package domain
