// Command timepicker connects to a running mpv over its JSON IPC socket and
// lets the viewer mark time points, see them on an overlay, and hand them to
// an external program or script.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
