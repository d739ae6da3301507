package cmd

import (
	"fmt"
	"io"
)

const banner = `
  _     _  __ _   _                
 | |   (_)/ _| | | |    ___   __ _ 
 | |   | | |_| __| |   / _ \ / _` + "`" + ` |
 | |___| |  _| |_| |__| (_) | (_| |
 |_____|_|_|  \__|_____\___/ \__, |
                             |___/ 
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Workout Tracker - Version %s\x1b[0m\n\n", Version)
}
