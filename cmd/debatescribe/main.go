package main

import "github.com/forPelevin/debatescribe/internal/cli"

func main() { cli.Main() }
