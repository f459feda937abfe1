package banner

import (
	"fmt"
	"io"
)

const Version = "1.0.0"

func Print(w io.Writer) {
	banner := `
                              _
  _ __   __ _ _ __ ___   ___  __| | __ _
 | '_ \ / _' | '_ ' _ \ / _ \/ _' |/ _' |
 | | | | (_| | | | | | |  __/ (_| | (_| |
 |_| |_|\__,_|_| |_| |_|\___|\__,_|\__, |
                                      |_|  v%s - named queue relay
    `
	fmt.Fprintf(w, banner, Version)
	fmt.Fprintln(w, "\n------------------------------------------------")
}
