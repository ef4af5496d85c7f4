// Command gotap installs Go command line tools from verified-source recipes.
package main

import "github.com/goplus/gotap/cmd/gotap/internal"

func main() {
	internal.Execute()
}
