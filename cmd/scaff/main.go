package main

import (
	"github.com/joho/godotenv"

	"github.com/santiagomed/scaff/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
