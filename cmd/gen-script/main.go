package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	httpAdapter "github.com/aretw0/tether/pkg/adapters/http"
	"gopkg.in/yaml.v3"
)

// gen-script writes the sample scripts played by `tether mock --script`.
func main() {
	targetDir := "examples/scripts"
	if len(os.Args) > 1 {
		targetDir = os.Args[1]
	}

	// Ensure dir exists
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		panic(err)
	}

	fmt.Printf("Generating scripts in: %s\n", targetDir)

	scripts := []httpAdapter.Script{
		httpAdapter.DefaultScript(),
		{
			Name:  "storage-account",
			Delay: 100 * time.Millisecond,
			Segments: []httpAdapter.Segment{
				{
					Events: []map[string]any{
						{"step": 1, "message": "Planning storage account"},
					},
					Interrupt: map[string]string{
						"resource_group": "Which resource group should hold the account?",
						"sku":            "Which SKU (Standard_LRS, Standard_GRS)?",
					},
				},
				{
					Events: []map[string]any{
						{"step": 2, "message": "Creating storage account", "details": map[string]any{"kind": "StorageV2"}},
					},
					Result: map[string]any{"account": "strgwodsissd", "status": "Succeeded"},
				},
			},
		},
		{
			Name:  "quota-exceeded",
			Delay: 100 * time.Millisecond,
			Segments: []httpAdapter.Segment{
				{
					Events: []map[string]any{{"step": 1, "message": "Checking regional quota"}},
					Fail:   "quota exceeded for Standard_B family",
				},
			},
		},
	}

	for _, s := range scripts {
		check(s.Validate())
		data, err := yaml.Marshal(s)
		check(err)
		path := filepath.Join(targetDir, s.Name+".yaml")
		check(os.WriteFile(path, data, 0644))
		fmt.Println("Wrote", path)
	}

	fmt.Println("Done. Try: tether mock --script", filepath.Join(targetDir, scripts[1].Name+".yaml"))
}

func check(err error) {
	if err != nil {
		panic(err)
	}
}
