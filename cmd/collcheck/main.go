// Command collcheck runs replica-parallel send/recv scenarios and checks
// their outputs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/collcheck/internal/cli"
	"k8s.io/klog/v2"
)

func main() {
	err := cli.NewRootCommand().Execute()
	klog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, "collcheck:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
