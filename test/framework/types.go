// Package framework provides reusable soak-run test scaffolding: an
// in-process Engine spawner, polling waiters and domain assertions, so
// integration tests can drive a full soak without a network: the
// deterministic fake connector stands in for the exchange, and artifacts
// are written under the run's ArtifactsDir.
package framework

// TestingT is an interface matching testing.T, letting framework helpers
// take either *testing.T or a fake in their own tests.
type TestingT interface {
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	FailNow()
	Failed() bool
	Name() string
	Helper()
}
