package main

import "github.com/uvabd17/liveleaderboard/internal/cli"

func main() { cli.Main() }
