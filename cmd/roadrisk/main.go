package main

import (
	"github.com/joho/godotenv"
	"github.com/tarterware/roadrisk/internal/roadrisk"
)

func main() {
	_ = godotenv.Load()

	roadrisk.New().Start()
}
