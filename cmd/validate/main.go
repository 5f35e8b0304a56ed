// Command validate checks grid catalogs and request bodies against their JSON
// Schemas.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"

	"github.com/gnemet/gridquery"
	"github.com/gnemet/gridquery/internal/schema"
)

func main() {
	schemaPath := flag.String("schema", "", "Catalog schema file; defaults to the schema derived from the catalog types")
	request := flag.Bool("request", false, "Validate grid request bodies instead of catalogs")
	printSchema := flag.String("print-schema", "", "Print the schema of \"catalog\" or \"request\" and exit")
	flag.Parse()

	if *printSchema != "" {
		if err := printSchemaOf(*printSchema); err != nil {
			log.Fatal(err)
		}
		return
	}
	if flag.NArg() == 0 {
		fmt.Println("Usage: validate [-schema schema.json | -request] <file1> [file2] ...")
		os.Exit(1)
	}

	s, err := loadSchema(*schemaPath, *request)
	if err != nil {
		log.Fatalf("Invalid schema: %v", err)
	}

	allValid := true
	for _, arg := range flag.Args() {
		path, err := filepath.Abs(arg)
		if err != nil {
			fmt.Printf("❌ Invalid path: %s\n", arg)
			allValid = false
			continue
		}
		if !check(s, path, *request) {
			allValid = false
		}
	}

	if !allValid {
		os.Exit(1)
	}
}

func printSchemaOf(kind string) error {
	var v any
	switch kind {
	case "catalog":
		v = schema.Reflect(&gridquery.Catalog{})
	case "request":
		v = schema.FilterData()
	default:
		return fmt.Errorf("unknown schema %q, want catalog or request", kind)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loadSchema(path string, request bool) (*gojsonschema.Schema, error) {
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		return gojsonschema.NewSchema(gojsonschema.NewReferenceLoader("file://" + abs))
	}
	v := any(schema.Reflect(&gridquery.Catalog{}))
	if request {
		v = schema.FilterData()
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(v))
}

func check(s *gojsonschema.Schema, path string, request bool) bool {
	name := filepath.Base(path)
	if err := schema.Validate(s, gojsonschema.NewReferenceLoader("file://"+path)); err != nil {
		fmt.Printf("❌ %s is invalid!\n", name)
		if verr, ok := err.(*schema.ValidationError); ok {
			for _, p := range verr.Problems {
				fmt.Printf("   - %s\n", p)
			}
		} else {
			fmt.Printf("   - %v\n", err)
		}
		return false
	}

	// Catalogs must also build into grid columns.
	if !request {
		cat, err := gridquery.LoadCatalog(path)
		if err == nil {
			_, err = gridquery.ColumnsFromCatalog(cat, "en", nil)
		}
		if err != nil {
			fmt.Printf("❌ %s: %v\n", name, err)
			return false
		}
	}
	fmt.Printf("✅ %s is valid.\n", name)
	return true
}
