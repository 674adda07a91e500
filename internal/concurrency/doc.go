// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker assignment for long-running data-plane tasks. One Policy decides whether
// tasks float on the Go scheduler or get a locked OS thread pinned to a CPU;
// the rest of the harness never branches on it.
package concurrency
