// Package types defines the shared error taxonomy used across the engine,
// checkpoint stores and workflow configurations.
package types
