// Package projection implements the financial calculators and the worker
// engine that runs them behind a message boundary.
//
// Calculators are pure functions of their input. Iterative ones stop after
// MaxMonths simulated months, so every call terminates.
//
// Callers talk to the engine with Message values and receive exactly one
// Reply per message, correlated by ID:
//
//	eng := projection.New(projection.WithWorkers(2))
//	defer eng.Close()
//
//	out, err := eng.Compute(ctx, projection.CalculateDebtPayoff, data)
//
// Data crosses the boundary as JSON bytes; no state is shared between a
// caller and a worker.
package projection
