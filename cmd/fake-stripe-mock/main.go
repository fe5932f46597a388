// Command fake-stripe-mock serves fixtures with the stripe-mock command line.
// Install it as stripe-mock to run the supervisor without the real binary.
package main

import "github.com/artefactual-labs/stripemock/internal/fakemock"

func main() {
	fakemock.Main()
}
