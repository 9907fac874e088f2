// Package config defines the format-agnostic pipeline model, along with the
// Loader interface for reading it from a concrete file format.
//
// The `config.Model` is the single source of truth for the `builder` package,
// which turns it into a runnable node graph. Concrete loaders, such as the HCL
// one, live in separate packages.
package config
