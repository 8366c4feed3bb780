// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"clinic-workers/pkg/registry"
)

var registryPath string

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{exportCmd, addCmd, updateCmd, validateCmd, listCmd} {
		fs.StringVar(&registryPath, "path", "configs/templates.json", "Path to registry file")
	}

	keyAdd := addCmd.String("key", "", "Template key (e.g., EVENT_RESCHEDULED)")
	description := addCmd.String("description", "", "Description")
	kinds := addCmd.String("recipientKinds", "Patient", "Comma separated recipient kinds (Patient, Staff)")
	tags := addCmd.String("tags", "", "Comma separated tags")

	keyUpdate := updateCmd.String("key", "", "Template key to update")
	field := updateCmd.String("field", "", "Field to update (description, recipientKinds, tags)")
	value := updateCmd.String("value", "", "New value for the field")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		reg := registry.Default()
		reg.LastUpdated = time.Now().Format(time.RFC3339)
		err = registry.Save(reg, registryPath)
		if err == nil {
			fmt.Printf("Wrote built-in registry to %s\n", registryPath)
		}

	case "add":
		addCmd.Parse(os.Args[2:])
		if *keyAdd == "" || *description == "" {
			fmt.Println("Error: key and description are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		err = addTemplate(registry.Template{
			Key:            *keyAdd,
			Description:    *description,
			RecipientKinds: splitList(*kinds),
			MetaSchema:     map[string]interface{}{"type": "object"},
			Tags:           splitList(*tags),
		})
		if err == nil {
			fmt.Printf("Added template: %s\n", *keyAdd)
		}

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *keyUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: key, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		err = updateTemplate(*keyUpdate, *field, *value)
		if err == nil {
			fmt.Printf("Updated template %s, field %s to %s\n", *keyUpdate, *field, *value)
		}

	case "validate":
		validateCmd.Parse(os.Args[2:])
		var reg *registry.TemplateRegistry
		reg, err = registry.LoadRegistry(registryPath)
		if err == nil {
			err = reg.Validate()
		}
		if err == nil {
			fmt.Printf("Registry validation passed. Found %d templates.\n", len(reg.Templates))
		}

	case "list":
		listCmd.Parse(os.Args[2:])
		var reg *registry.TemplateRegistry
		reg, err = registry.LoadOrDefault(registryPath)
		if err == nil {
			for _, tpl := range reg.Templates {
				fmt.Printf("%-22s %-16s %s\n", tpl.Key, strings.Join(tpl.RecipientKinds, ","), tpl.Description)
			}
		}

	default:
		help()
		return
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func addTemplate(tpl registry.Template) error {
	reg, err := registry.LoadOrDefault(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if _, exists := reg.Lookup(tpl.Key); exists {
		return fmt.Errorf("template with key %s already exists", tpl.Key)
	}

	reg.Templates = append(reg.Templates, tpl)
	if err := reg.Validate(); err != nil {
		return err
	}
	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return registry.Save(reg, registryPath)
}

func updateTemplate(key, field, value string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	tpl, ok := reg.Lookup(key)
	if !ok {
		return fmt.Errorf("template with key %s not found", key)
	}
	switch field {
	case "description":
		tpl.Description = value
	case "recipientKinds":
		tpl.RecipientKinds = splitList(value)
	case "tags":
		tpl.Tags = splitList(value)
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	if err := reg.Validate(); err != nil {
		return err
	}
	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return registry.Save(reg, registryPath)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func help() {
	fmt.Println(`
Usage: registry-updater <command> [flags]

Commands:
  export   Write the built-in template registry to -path
  add      Add a template
  update   Update a template field
  validate Validate the registry file
  list     List templates
  help     Show this help message

Examples:
  registry-updater export -path configs/templates.json
  registry-updater add -key EVENT_RESCHEDULED -description "Appointment moved" -recipientKinds Patient
  registry-updater update -key EVENT_RESCHEDULED -field tags -value appointments
  registry-updater validate -path configs/templates.json`)
}
