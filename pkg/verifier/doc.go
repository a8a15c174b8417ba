// Package verifier is the Delta Verifier: it reads a completed artifact
// tree's TUNING_REPORT.json and classifies, for every iteration that
// proposed a delta, whether the Delta Pipeline's actual commit matched the
// Watcher's ask (full apply), deviated for a guard-justified reason
// (partial), deviated without one (fail), or left the runtime overrides
// signature unchanged despite claiming to have applied (signature-stuck).
// A full-apply ratio and signature-stuck count feed a PASS/FAIL verdict
// under one of three modes: default, strict, or soft (PR-gate).
package verifier
