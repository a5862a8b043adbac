/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "wisochat/cmd"

func main() {
	cmd.Execute()
}
