// Command wheelctl holds operator tools for the wheel bot: checking the
// language model setup, listing local models and applying the schema.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
