package display

import (
	"fmt"
	"os"

	"github.com/backmassage/inkscale/internal/term"
)

// PrintBanner prints the ASCII art banner; uses Magenta if colors are enabled.
func PrintBanner() {
	if term.Enabled() {
		fmt.Fprint(os.Stdout, term.Magenta)
	}
	fmt.Fprint(os.Stdout, ` ___       _     ____            _
|_ _|_ __ | | __/ ___|  ___ __ _| | ___
 | || '_ \| |/ /\___ \ / __/ _`+"`"+` | |/ _ \
 | || | | |   <  ___) | (_| (_| | |  __/
|___|_| |_|_|\_\|____/ \___\__,_|_|\___|
`)
	if term.Enabled() {
		fmt.Fprintln(os.Stdout, term.NC)
	}
}
