// Package assemble packs harmonized pollen counts, vegetation composition
// and site/cell geometry into the fixed-shape bundle consumed by the
// calibration sampler.
package assemble
