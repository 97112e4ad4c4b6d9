// Package types defines the storage substrate interfaces, row values,
// configuration, and standard errors shared by the shelf engine, its
// storage backends, and its callers.
package types
