// Package errors provides the structured error type used across podflow.
//
// Every error that can reach an API caller is an *AppError carrying a
// machine-readable code, a human message, the HTTP status it maps to and
// whether retrying could help. Engine sentinels (run already in progress,
// graph cycle, ambiguous upstream) are AppErrors too, so handlers never need
// to translate them by hand.
package errors
