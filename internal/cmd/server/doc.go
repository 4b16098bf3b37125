// Package serverrun boots daemon mode: a long-lived drain loop plus the
// optional HTTP status surface.
package serverrun
