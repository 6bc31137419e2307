// Package sidechannel mirrors committed operations to secondary systems.
//
// Delivery is best effort and detached from the request that produced the
// operations: tasks go into a bounded queue, workers send them to every
// configured Sink with exponential backoff, each sink sits behind its own
// circuit breaker and every outcome is counted in
// radsync_sidechannel_tasks_total. A full queue drops the task.
package sidechannel
