// Package api defines the JSON request and response shapes of the
// setstored HTTP surface, plus small client helpers used by tools and
// integration tests.
package api
