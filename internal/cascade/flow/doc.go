// Package flow estimates the motion of precipitation between two maps and
// moves fields along it.
//
// Responsibilities: the Tracker contract the cascade engine consumes, and
// BlockMatcher, a block-matching implementation with semi-Lagrangian
// advection.
// Key types: Tracker, BlockMatcher, MatcherConfig.
//
// Dependency rule: flow only sees flat row-major grids and a no-data value.
// It does not know about cascade levels or rain transforms.
package flow
