package main

import "github.com/Synternet/stellar-price-feeder/cmd"

func main() {
	cmd.Execute()
}
