package main

import (
	"log"

	"chatkit/internal/app"
)

func main() {
	if err := app.Execute(); err != nil {
		log.Fatal(err)
	}
}
