package main

import "github.com/uvabd17/liveleaderboard/internal/daemon"

func main() { daemon.Main() }
