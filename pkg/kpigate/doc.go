// Package kpigate is the KPI Gate: it consumes the last N iteration
// summaries, aggregates each KPI (mean, median, min, max) and produces a
// PostSoakSnapshot with a single PASS/FAIL verdict against fixed
// thresholds. READINESS_OVERRIDE=1 forces the verdict to PASS while the
// aggregates still report actual observed values.
package kpigate
