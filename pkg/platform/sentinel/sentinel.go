package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into
// domain errors or policy outcomes.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store (e.g. decision cache miss)
// - ErrUnavailable: cache or sink backend temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
// A policy deny is never an error; it is a Decision value.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
)
