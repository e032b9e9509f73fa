// Package engine implements a generic stateful workflow execution engine:
// a schema'd state record with field-level merge policies, a fixed graph of
// stages connected by static and conditional edges, bounded loop counters
// that live inside the record, and sessions that checkpoint after every
// stage so a run can be resumed without re-executing completed work.
package engine
