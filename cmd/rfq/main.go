// Command rfq runs and drives request-for-quote negotiations.
//
// The worker subcommand hosts the negotiation workflow and its activities on
// a Temporal task queue. submit, quote, accept, reject, status and list talk
// to those workflows through the registry. simulate runs a negotiation
// in-process on a virtual clock without a Temporal cluster.
package main

import (
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	Execute()
}
