// Package agemodel selects the fossil pollen samples that fall inside a
// calibration age window.
//
// A sample may carry several age estimates, one per age-model method. The
// representative age is the estimate of the first method in an explicit
// priority list; samples with no estimate under any listed method are
// excluded and reported, never defaulted.
package agemodel
