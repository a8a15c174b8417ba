/*
Package jsonio is the single deterministic-JSON primitive every artifact
writer in soakctl builds on: ITER_SUMMARY_N.json, TUNING_REPORT.json,
runtime_overrides.json and POST_SOAK_SNAPSHOT.json are all written through
WriteAtomic, and tuning signatures are computed through SHA256Hex.

# Guarantees

  - Sorted map keys, compact separators, UTF-8, LF line endings.
  - NaN/±Inf anywhere in the value tree is rejected with a
    *NumericDomainError before any bytes are written.
  - WriteAtomic never leaves a torn file: it writes to "<path>.tmp.<pid>"
    in the same directory, fsyncs the file, renames over path, then
    fsyncs the parent directory.
  - Canonical(x) == Canonical(Canonical-round-tripped x): re-marshalling
    already-canonical JSON reproduces it byte-for-byte.
  - SHA256Hex(x) is deterministic: equal values hash equal, regardless of
    map iteration order.
*/
package jsonio
