// Package viz renders hydrological runs in the terminal.
//
//   - [Hydrograph], [Fluxes] and [SweepPlot]: asciigraph line charts of
//     simulated and observed series
//   - [Scatter]: braille rendering of a storage-discharge portrait
//   - [Progress]: Bubble Tea view of a running calibration, driven by
//     [WatchCalibration]
//
// Colours come from the package styles and can be switched with
// [SetTheme].
package viz
