package cmd

import (
	"fmt"
	"io"
)

const banner = `
     _                                   __ 
  __| | ___   ___ _ __  _ __ ___   ___  / _|
 / _` + "`" + ` |/ _ \ / __| '_ \| '__/ _ \ / _ \| |_ 
| (_| | (_) | (__| |_) | | | (_) | (_) |  _|
 \__,_|\___/ \___| .__/|_|  \___/ \___/|_|  
                 |_|                        
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Document Proof Node - Version %s\x1b[0m\n\n", Version)
}
