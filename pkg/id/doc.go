// Package id generates instance identifiers for queue coordination.
//
// An instance ID names one running process for the lifetime of that process.
// It combines the pid, a random suffix, and a random slice of the current
// millisecond timestamp. The result is collision-resistant across editor
// windows racing on one machine, not cryptographically strong; lease
// ownership checks only need the IDs of two live processes to differ.
package id
