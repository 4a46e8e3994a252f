// Package records reads the tabular exports the calibration pipeline starts
// from: fossil pollen counts with their age estimates, and gridded vegetation
// composition with optional uncertainty.
package records
