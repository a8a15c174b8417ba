// Package artifacts owns the on-disk tree rooted at artifacts/soak/<stream>/:
// ITER_SUMMARY_<N>.json (write-once per iteration), TUNING_REPORT.json
// (rewritten atomically as a whole array each iteration), POST_SOAK_SNAPSHOT.json
// (written once by the KPI Gate) and FAILURES.md (written when any iteration
// records a failure entry). runtime_overrides.json lives in the same tree
// but is owned by pkg/tuning, the single writer for that file.
package artifacts
