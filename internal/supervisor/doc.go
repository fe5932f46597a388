// Package supervisor runs a single stripe-mock child process for an
// integration test suite.
//
// A [Supervisor] owns at most one child. [Supervisor.Start] is idempotent: it
// returns the port of the running child, or discovers a free port, spawns
//
//	stripe-mock -http-port <PORT> -spec <spec3.json> -fixtures <fixtures3.json>
//
// waits a settle interval and checks the child did not exit. [Supervisor.Stop]
// terminates and reaps the child and is safe to call any number of times.
//
// When STRIPE_MOCK_PORT is set, Start returns its value and no process is
// spawned, so an externally managed stripe-mock can be used instead.
//
// A Supervisor is not safe for concurrent use. It is meant to be constructed
// once per test binary, usually in TestMain with [RunMain], or per test with
// [StartTestServer]. Script tests can use the "mockserver" command provided by
// [TestScriptCmd].
package supervisor
