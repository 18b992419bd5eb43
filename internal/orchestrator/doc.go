// Package orchestrator runs test x engine matrices. It expands a request
// into execution units, drives each unit through session acquisition, test
// execution, recording and teardown on a bounded worker pool, and streams
// progress to subscribers as the run advances.
package orchestrator
