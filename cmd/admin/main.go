// Command admin moderates RecipeBox from the terminal: account approval,
// administrator rights, recipe review and an interactive queue.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
