// Package dynamo provides the core primitives for lumped conceptual
// hydrological simulation.
//
// The package defines the contracts shared by every storage element and
// numerical scheme:
//
//   - [Series]: a forcing or flux time series
//   - [FluxEvaluator]: flux law of a storage element (dS/dt = sum of fluxes)
//   - [RootFinder]: scalar bracketing root finder
//   - [Approximator]: turns a flux law into per-step state updates
//   - [Element]: a node of a catchment model (reservoir, lag, splitter, ...)
//
// # Example
//
//	rf := rootfind.NewPegasus(dynamo.DefaultSolverConfig())
//	approx := integrators.NewImplicitEuler(rf)
//	fr, _ := elements.NewPowerReservoirET("FR", params, 20.0, approx)
//	_ = fr.SetInput(p, pet)
//	_ = fr.SetTimestep(1.0)
//	q, _ := fr.Output()
//
// # Thread Safety
//
// Elements own their parameters and states and are NOT thread-safe. Root
// finders and approximators are stateless and may be shared between
// elements and goroutines.
package dynamo
