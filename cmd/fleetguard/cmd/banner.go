package cmd

import (
	"fmt"
	"io"
)

const banner = `
   __ _           _                              _ 
  / _| | ___  ___| |_ __ _ _   _  __ _ _ __ __| |
 | |_| |/ _ \/ _ \ __/ _` + "`" + ` | | | |/ _` + "`" + ` | '__/ _` + "`" + ` |
 |  _| |  __/  __/ || (_| | |_| | (_| | | | (_| |
 |_| |_|\___|\___|\__\__, |\__,_|\__,_|_|  \__,_|
                     |___/                        
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Fleet Security Guard - Version %s\x1b[0m\n\n", Version)
}
