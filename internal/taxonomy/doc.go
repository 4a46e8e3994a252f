// Package taxonomy harmonizes taxon vocabularies.
//
// Translation is a two-phase workflow. BuildTemplate enumerates the raw
// labels present in one or more datasets so a domain expert can complete a
// translation table outside the program; ApplyTranslation then re-expresses a
// table over the completed map's target vocabulary. The map is treated as an
// external, versioned artifact: this package validates it but never infers
// entries.
//
// Mass is conserved: each raw column is distributed over its targets with
// weights that sum to one, so row sums before and after translation agree to
// floating-point tolerance. A raw label with no entry is an error, never a
// silent drop.
package taxonomy
