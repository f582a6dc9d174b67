// Package elements implements the storage and routing elements that make
// up a catchment model.
//
// Reservoirs solve their flux balance with an injected
// [dynamo.Approximator]:
//
//   - [PowerReservoirET]: power-law discharge with saturating evapotranspiration
//   - [PowerReservoir]: power-law discharge fed by an upstream flux
//   - [UnsaturatedReservoir]: HBV soil moisture store
//
// Stateless and lag elements redistribute fluxes:
//
//   - [Splitter]: proportional split into two fluxes
//   - [Junction]: elementwise sum of routed fluxes
//   - [HalfTriangularLag]: convolution with a half-triangle unit hydrograph
//
// Every reservoir carries two evaluators of its flux law. The general one
// allocates and is always used to report fluxes; the compiled one binds
// parameters and inputs up front and is used inside the root-finding loop
// when [dynamo.ArchCompiled] is selected. Both give identical results.
package elements
