// Command sessiontrack runs the session lifecycle tracker.
package main

import "github.com/Sentinel-Gate/sessiontrack/cmd/sessiontrack/cmd"

func main() {
	cmd.Execute()
}
