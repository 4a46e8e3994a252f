// Package pipeline wires the calibration stages together: load the raw
// tables, select the calibration samples, harmonize taxa, grid the
// vegetation, build neighborhoods and assemble the sampler bundle.
package pipeline
