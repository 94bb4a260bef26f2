package cmd

import (
	"fmt"
)

const banner = `
  __  __          _     _
 |  \/  | ___ ___| |__ (_)
 | |\/| |/ _ \_  / '_ \| |
 | |  | | (_) / /| | | | |
 |_|  |_|\___/___|_| |_|_|

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Voice Bridge Agent - Version %s\x1b[0m\n\n", Version)
}
