package main

import (
	"fmt"
	"os"

	"github.com/lerian-labs/icvsb-gateway/internal/bootstrap"
)

func main() {
	service, err := bootstrap.InitServers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize icvsb-gateway: %v\n", err)
		os.Exit(1)
	}

	if err := service.Run(); err != nil {
		service.Logger.Errorf("icvsb-gateway: %v", err)
		_ = service.Logger.Sync()
		os.Exit(1)
	}
}
