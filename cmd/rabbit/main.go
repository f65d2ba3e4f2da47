// Command rabbit invokes the methods declared in a client configuration
// file from the command line.
package main

import (
	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Print version information."`
	Methods MethodsCmd `cmd:"" help:"List the methods declared in a configuration file."`
	Invoke  InvokeCmd  `cmd:"" help:"Invoke a declared method and print the result as JSON."`
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("rabbit"),
		kong.Description("Declarative HTTP and gRPC client."),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
