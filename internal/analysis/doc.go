// Package analysis holds the eight website checks a run is made of.
//
// Each check is a Task bound to one Kind. A task owns its input, the
// normalized subject derived from it, a de-duplication guard of subjects it
// has already attempted and the typed result of its last call. Network I/O
// goes through Client and every call is wrapped by a resilience.Executor.
package analysis
