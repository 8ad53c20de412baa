package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/mattn/go-isatty"
)

func useColor() bool {
	switch colorFlag {
	case "yes":
		return true
	case "no":
		return false
	default:
		return isatty.IsTerminal(os.Stdout.Fd())
	}
}

// render prints v as json when --format json is set, else via the table
// function.
func render(v interface{}, table func()) error {
	if formatFlag == "json" {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}
	table()
	return nil
}

func header(s string) string {
	if !useColor() {
		return s
	}
	return color.New(color.Bold).Sprint(s)
}

func good(s string) string {
	if !useColor() {
		return s
	}
	return color.GreenString(s)
}

func bad(s string) string {
	if !useColor() {
		return s
	}
	return color.RedString(s)
}
