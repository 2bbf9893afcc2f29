// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"breakfear-decoder/pkg/registry"
)

const defaultPath = "configs/variant-registry.json"

func main() {
	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	schemaCmd := flag.NewFlagSet("schema", flag.ExitOnError)

	initPath := initCmd.String("path", defaultPath, "Path to write the built-in variants to")
	force := initCmd.Bool("force", false, "Overwrite an existing file")

	listPath := listCmd.String("path", defaultPath, "Path to registry file")

	updatePath := updateCmd.String("path", defaultPath, "Path to registry file")
	variantID := updateCmd.String("variant", "", "Variant ID (e.g., portal)")
	fieldName := updateCmd.String("field", "", "Field name (e.g., insight); empty updates the variant itself")
	attr := updateCmd.String("attr", "", "Attribute to update")
	value := updateCmd.String("value", "", "New value for the attribute")

	validatePath := validateCmd.String("path", defaultPath, "Path to registry file")

	schemaPath := schemaCmd.String("path", defaultPath, "Path to registry file")
	schemaVariant := schemaCmd.String("variant", "portal", "Variant ID")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		initCmd.Parse(os.Args[2:])
		if err := initRegistry(*initPath, *force); err != nil {
			fmt.Printf("Error writing registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote built-in variants to %s\n", *initPath)

	case "list":
		listCmd.Parse(os.Args[2:])
		reg, err := readRegistry(*listPath)
		if err != nil {
			fmt.Printf("Error loading registry: %v\n", err)
			os.Exit(1)
		}
		for _, v := range reg.Variants {
			fmt.Printf("%-14s %-28s crisisFilter=%-5v fields=%v\n", v.ID, v.DisplayName, v.CrisisFilter, v.FieldNames())
		}

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *variantID == "" || *attr == "" {
			fmt.Println("Error: variant and attr are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateVariant(*updatePath, *variantID, *fieldName, *attr, *value); err != nil {
			fmt.Printf("Error updating variant: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated %s %s to %q\n", target(*variantID, *fieldName), *attr, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(*validatePath); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}

	case "schema":
		schemaCmd.Parse(os.Args[2:])
		reg, err := readRegistry(*schemaPath)
		if err != nil {
			fmt.Printf("Error loading registry: %v\n", err)
			os.Exit(1)
		}
		v, ok := reg.Get(*schemaVariant)
		if !ok {
			fmt.Printf("Unknown variant: %s\n", *schemaVariant)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(v.OutputSchema(), "", "  ")
		fmt.Println(string(out))

	case "help":
		fallthrough
	default:
		help()
	}
}

// readRegistry loads the file without rejecting invalid content so validate
// can report every problem.
func readRegistry(path string) (*registry.VariantRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg registry.VariantRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &reg, nil
}

func initRegistry(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}
	reg := registry.Default()
	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return saveRegistry(reg, path)
}

func updateVariant(path, variantID, fieldName, attr, value string) error {
	reg, err := readRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	v, ok := reg.Get(variantID)
	if !ok {
		return fmt.Errorf("variant %s not found", variantID)
	}

	if fieldName == "" {
		switch attr {
		case "displayName":
			v.DisplayName = value
		case "description":
			v.Description = value
		case "systemInstruction":
			v.SystemInstruction = value
		case "crisisFilter":
			on, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid crisisFilter value: %w", err)
			}
			v.CrisisFilter = on
		default:
			return fmt.Errorf("unknown variant attribute: %s", attr)
		}
	} else {
		f := findField(v, fieldName)
		if f == nil {
			return fmt.Errorf("field %s not found in variant %s", fieldName, variantID)
		}
		switch attr {
		case "label":
			f.Label = value
		case "description":
			f.Description = value
		case "fallback":
			f.Fallback = value
		case "closingSentence":
			f.ClosingSentence = value
		case "maxSentences", "maxWords":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid %s value: %w", attr, err)
			}
			if attr == "maxSentences" {
				f.MaxSentences = n
			} else {
				f.MaxWords = n
			}
		default:
			return fmt.Errorf("unknown field attribute: %s", attr)
		}
	}

	if errs := reg.Validate(); len(errs) > 0 {
		return fmt.Errorf("update leaves the registry invalid: %v", errs[0])
	}
	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return saveRegistry(reg, path)
}

func findField(v *registry.Variant, name string) *registry.FieldSpec {
	for i := range v.Fields {
		if v.Fields[i].Name == name {
			return &v.Fields[i]
		}
	}
	return nil
}

func validateRegistry(path string) error {
	reg, err := readRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if len(reg.Variants) == 0 {
		return fmt.Errorf("registry contains no variants")
	}

	errs := reg.Validate()
	for _, e := range errs {
		fmt.Printf("  - %v\n", e)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d problem(s) found", len(errs))
	}

	fmt.Printf("Registry validation passed. Found %d variants.\n", len(reg.Variants))
	return nil
}

func saveRegistry(reg *registry.VariantRegistry, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := registry.SaveRegistry(path, reg); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func target(variantID, fieldName string) string {
	if fieldName == "" {
		return variantID
	}
	return variantID + "." + fieldName
}

func help() {
	fmt.Println(`
Usage: registry-updater <command> [flags]

Commands:
  init      Write the built-in variants to a registry file
  list      List variants and their fields
  update    Update a variant or field attribute
  validate  Validate the registry file
  schema    Print the AI output schema of a variant
  help      Show this help message

Examples:
  registry-updater init -path configs/variant-registry.json
  registry-updater update -variant portal -field task -attr maxWords -value 24
  registry-updater update -variant breakthrough -attr crisisFilter -value true
  registry-updater validate -path configs/variant-registry.json
  registry-updater schema -variant breakthrough

Use 'registry-updater <command> -h' for more information about a command.`)
}
