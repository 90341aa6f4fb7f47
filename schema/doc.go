// Package schema describes the values a trait accepts.
//
// A Type coerces raw configuration input (strings from environment variables,
// numbers decoded from files, values computed by expressions) into the
// trait's declared type. Converters then reshape the value and validators
// check it. Any failure is reported as a *CastingError carrying the offending
// value and the constraint that rejected it.
package schema
