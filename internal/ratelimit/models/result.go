// Package models holds rate limit decisions shared by stores and middleware.
package models

import "time"

// Result is one rate limit decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is whole seconds until a denied caller may try again.
	RetryAfter int
}

// Class names a group of routes sharing one limit.
type Class struct {
	Name   string
	Limit  int
	Window time.Duration
}
