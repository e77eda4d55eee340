// emsm is the Extendable Minecraft Server Manager.
package main

import (
	"os"

	"github.com/emsm/emsm/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
