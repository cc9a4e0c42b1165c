// Package config loads and validates the estimator settings. Fields are
// pointers so that a partial JSON file only overrides what it names; the
// Get* accessors supply defaults for the rest.
//
// A mode is a named preset that fills the behaviour flags and stabilities
// for a phase of the calibration: building a new table, refining a fresh one,
// running on a mature one, or locking it.
package config
