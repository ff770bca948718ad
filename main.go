package main

import "github.com/frahmantamala/pentest-portal/cmd"

func main() {
	cmd.Execute()
}
