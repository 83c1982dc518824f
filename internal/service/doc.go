/*
Package service implements the simulation engine of the load balancer simulator.

Key Components:

Simulator:
The orchestrator owning the server registry, event log, health monitor and
dispatcher. It exposes the command and query API used by any presentation
layer.

	sim := service.NewSimulator(
		service.DefaultOptions(),
		clock.NewReal(),
		service.NewRandomSource(0),
		service.NewMetrics(prometheus.DefaultRegisterer),
		logger,
	)

	if err := sim.Start(ctx); err != nil {
		log.Fatal("Failed to start simulator:", err)
	}

	sim.SetAlgorithm("leastConnections")
	sim.StartSimulation()
	snapshot := sim.Snapshot()

Health Monitor:
Every interval (3s by default) each online server's health moves by
uniform(0,15) - connections/2, clamped to [0,100]. Latency and packet loss are
derived from the new health and load. Band transitions and crossings of the
critical threshold are written to the event log.

Routing Policies:

	router := service.NewRouter()
	server := router.Next(servers, &config) // nil when nothing is eligible

Round robin keeps its cursor in the simulation config and normalizes it
against the current eligible count. Least connections picks the first server
with the minimum number of in-flight requests.

Dispatcher:
While running, one dispatch happens every 1/requestRate seconds. An admitted
request holds a connection slot for
800 + uniform(0,2400) + (100-health)*10 + connections*50 milliseconds.
Stopping the loop never cancels completions already scheduled.

Scheduling:
All deferred work goes through clock.Clock. Tests drive the simulator with
clock.Fake and a SequenceSource:

	clk := clock.NewFake(start)
	sim := service.NewSimulator(opts, clk, service.NewSequenceSource(0.5), nil, nil)
	sim.StartSimulation()
	clk.Advance(10 * time.Second)

Thread Safety:
Registry and log mutations from commands, health ticks, dispatch ticks and
completions are serialized by the simulator's mutex; each handler runs to
completion before the next one starts.
*/
package service
