package main

import (
	"os"

	"github.com/shandysiswandi/otpguard/internal/app"
)

func main() {
	application := app.New()          // Initialize the application
	os.Exit(application.Run(os.Args)) // Run the command and exit with its status
}
