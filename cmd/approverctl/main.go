package main

import "github.com/pesio-ai/be-ap-approver-selection/internal/cli"

func main() {
	cli.Execute()
}
