package main

import "github.com/mselser95/polymarket-boxspread/cmd"

func main() {
	cmd.Execute()
}
