package main

import (
	"briefcast/cmd/handlers"
	"briefcast/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
