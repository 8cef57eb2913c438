package main

import "github.com/JoeShih716/go-cash-ledger/cmd/ledgerctl/commands"

func main() {
	commands.Execute()
}
