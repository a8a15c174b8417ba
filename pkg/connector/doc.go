// Package connector defines the Exchange Connector contract and its two
// implementations: FakeDeterministic (seeded, frozen-clock-aware, used by
// every test and `soakctl run --fake`) and Live (gobreaker-protected,
// transport-injected, used against a real exchange).
package connector
