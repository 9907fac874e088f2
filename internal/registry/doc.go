// Package registry provides keyed deduplication of expensive-to-build values.
//
// Pipelines often reference the same derived artifact from many places, for
// example the index of a reference FASTA used by every sample. A Registry
// makes sure such a value is built once per key, so every consumer shares the
// same instance. Registries are owned by whoever builds a pipeline and live
// for one invocation; there are no package-level registries.
package registry
