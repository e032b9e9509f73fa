// Package workflows declares the built-in agent workflows: each one is a
// state schema plus a stage graph wired to the shared LLM, search, fetch
// and sandbox dependencies. A workflow is pure configuration; the engine
// package owns execution, checkpointing and resume.
package workflows
