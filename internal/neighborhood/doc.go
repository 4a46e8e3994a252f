// Package neighborhood relates fossil pollen sites to vegetation grid cells:
// the full site-to-cell distance matrix, each site's home cell, and the
// potential neighborhood of cells within a contribution radius.
//
// Cells are addressed by their position in the cell slice passed in, which
// is the column order of the distance matrix. Cell.ID breaks ties and orders
// neighborhood members.
package neighborhood
