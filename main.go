package main

import (
	"github.com/RuntimeErrorGr/Serverless-HostScanner/cmd"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/internal/config"
)

func main() {
	config.LoadConfig()
	cmd.Execute()
}
