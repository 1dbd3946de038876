// Command hsversions reconstructs when Matrix homeserver projects gained and
// lost support for spec versions, room versions, and default room versions.
package main

import "github.com/clokep/homeserver-spec-versions/cmd"

func main() {
	cmd.Execute()
}
