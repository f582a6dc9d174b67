// Package analysis provides tools for exploring how a model responds to its
// parameters and what its output looks like.
//
//   - [Sweep]: run a model for a list of values of one parameter
//   - [Elasticity]: relative change of total discharge per relative change
//     of a parameter
//   - [ReservoirSweep]: many PowerReservoirET parameterisations solved in
//     lockstep by one implicit Euler ensemble
//   - [Spectrum]: periodogram of a discharge series
//   - [Portrait]: storage-discharge scatter of a reservoir run
//
// # Sensitivity
//
// When the model has an unsaturated reservoir, every sweep run starts it at
// 20% of its capacity:
//
//	sweep := analysis.Sweep{Param: "m02_UR_Smax", Values: analysis.Range(50, 400, 6), Dt: 1}
//	points, err := sweep.Run(ctx, model, data)
package analysis
