// Package geo reprojects coordinates between spatial reference systems.
//
// Two families of system matter for calibration: a geographic lat/long system
// used to query archives by bounding box, and a projected, approximately
// isotropic system in which the grid is built and distances are measured.
// Projection math is delegated to github.com/ctessum/geom/proj; this package
// adds the identifier registry and domain-of-validity checks.
//
// Points in a geographic system carry longitude in X and latitude in Y,
// both in degrees.
package geo
