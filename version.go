package main

import (
	"embed"
	"encoding/json"
	"log"
)

//go:embed package.json
var pkgFS embed.FS

// appVersion is read from the embedded package.json at startup and shown
// in the GUI title.
var appVersion = "dev"

func init() {
	file, err := pkgFS.ReadFile("package.json")
	if err != nil {
		log.Printf("could not read embedded package.json: %v", err)
		return
	}
	var pkg struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(file, &pkg); err != nil {
		log.Printf("could not parse embedded package.json: %v", err)
		return
	}
	if pkg.Version != "" {
		appVersion = pkg.Version
	}
}
