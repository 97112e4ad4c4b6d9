// Command shelf is the command-line interface to shelf partitions.
package main

import "github.com/mesh-intelligence/shelf/internal/cli"

func main() {
	cli.Execute()
}
