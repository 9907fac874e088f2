// Package nodes provides factories for common bioinformatics steps built on
// atomiccmd and node.
//
// Factories come in two stages. A Customize function returns a parameter
// struct exposing the underlying atomiccmd.Builder values so callers can
// adjust options before Build finalizes them into a *node.Node. Index nodes
// are deduplicated per input file through Caches, so a BAM or FASTA shared by
// many steps is indexed once per pipeline.
package nodes
