// Package fakemock provides a small stand-in for the stripe-mock binary.
//
// ## Purpose
//
// The supervisor in internal/supervisor spawns stripe-mock as a child
// process. Tests in this repository cannot assume the real binary is
// installed, so fakemock accepts the same command line and serves a tiny
// subset of the Stripe API from the fixtures file:
//   - GET /healthz - liveness
//   - GET /v1/{resource}s - list object containing the fixture
//   - GET /v1/{resource}s/{id} - the fixture with its id replaced
//   - POST /v1/{resource}s - the fixture with a newly generated id
//
// ## Running
//
// [Main] is the binary entry point. It is used by cmd/fake-stripe-mock and
// registered as the "stripe-mock" command through testscript.Main, which
// places a copy of the test binary under that name in $PATH.
//
// Two environment variables let tests shape the child's behaviour:
// FAKEMOCK_EXIT_CODE makes the process exit immediately with that status and
// FAKEMOCK_IGNORE_TERM makes it ignore SIGTERM.
package fakemock
