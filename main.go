package main

import "github.com/Manu343726/lltrace/cmd"

func main() {
	cmd.Execute()
}
