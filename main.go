// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/nexusdm/dmengine/cmd"
)

func main() {
	err := cmd.Execute()
	os.Exit(cmd.ExitCode(err))
}
