package main

import "github.com/oshokin/offline-packager/cmd/offline-packager/cmd"

func main() {
	cmd.Execute()
}
