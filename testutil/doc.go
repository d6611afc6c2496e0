// Package testutil provides deterministic file fixtures for cursor and
// manager tests.
package testutil
