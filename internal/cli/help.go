package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

// Custom help styles - wave theme
var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(WaveCyan).
			MarginBottom(1)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(WaveTeal).
			Italic(true).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(WaveBlue).
				MarginTop(1)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(WaveCyan).
			Bold(true)

	helpArgStyle = lipgloss.NewStyle().
			Foreground(WaveFoam).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(SlateGray).
				Italic(true)
)

// StyledHelpPrinter creates a custom help printer with Lipgloss styling
func StyledHelpPrinter(options kong.HelpOptions) kong.HelpPrinter {
	return kong.HelpPrinter(func(options kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder

		node := ctx.Selected()
		if node == nil {
			node = ctx.Model.Node
		}

		// Title and description
		sb.WriteString(helpTitleStyle.Render(Title))
		sb.WriteString("\n")
		desc := Tagline
		if node != ctx.Model.Node && node.Help != "" {
			desc = node.Help
		}
		sb.WriteString(helpDescStyle.Render(desc))
		sb.WriteString("\n")

		// Usage
		sb.WriteString(helpSectionStyle.Render("Usage:"))
		sb.WriteString("\n  ")
		sb.WriteString(usage(ctx, node))
		sb.WriteString("\n")

		// Commands section
		commands := getCommands(node)
		if len(commands) > 0 {
			sb.WriteString("\n")
			sb.WriteString(helpSectionStyle.Render("Commands:"))
			sb.WriteString("\n")
			for _, cmd := range commands {
				sb.WriteString("  ")
				sb.WriteString(helpArgStyle.Render(fmt.Sprintf("%-24s", cmd.name)))
				sb.WriteString(cmd.help)
				sb.WriteString("\n")
			}
		}

		// Arguments section
		args := getArguments(node)
		if len(args) > 0 {
			sb.WriteString("\n")
			sb.WriteString(helpSectionStyle.Render("Arguments:"))
			sb.WriteString("\n")
			for _, arg := range args {
				sb.WriteString("  ")
				sb.WriteString(helpArgStyle.Render(arg.name))
				if arg.help != "" {
					sb.WriteString("  ")
					sb.WriteString(arg.help)
				}
				sb.WriteString("\n")
			}
		}

		// Flags section
		flags := getFlags(ctx.Model.Node, node)
		if len(flags) > 0 {
			sb.WriteString("\n")
			sb.WriteString(helpSectionStyle.Render("Flags:"))
			sb.WriteString("\n")
			for _, flag := range flags {
				sb.WriteString("  ")
				sb.WriteString(helpFlagStyle.Render(flag.flags))
				if flag.help != "" {
					sb.WriteString("  ")
					sb.WriteString(flag.help)
				}
				if flag.defaultVal != "" {
					sb.WriteString(" ")
					sb.WriteString(helpDefaultStyle.Render("(default: " + flag.defaultVal + ")"))
				}
				sb.WriteString("\n")
			}
		}

		sb.WriteString("\n")
		fmt.Fprint(ctx.Stdout, sb.String())
		return nil
	})
}

type argument struct {
	name string
	help string
}

type flag struct {
	flags      string
	help       string
	defaultVal string
}

func usage(ctx *kong.Context, node *kong.Node) string {
	if node == ctx.Model.Node {
		return fmt.Sprintf("%s <command> [flags]", ctx.Model.Name)
	}
	return fmt.Sprintf("%s %s", ctx.Model.Name, node.Summary())
}

func getCommands(node *kong.Node) []argument {
	var cmds []argument
	for _, child := range node.Children {
		if child.Type != kong.CommandNode || child.Hidden {
			continue
		}
		cmds = append(cmds, argument{name: child.Summary(), help: child.Help})
	}
	return cmds
}

func getArguments(node *kong.Node) []argument {
	var args []argument

	// Parse arguments from the model
	for _, arg := range node.Positional {
		name := arg.Summary()
		help := arg.Help
		args = append(args, argument{name: name, help: help})
	}

	return args
}

func getFlags(root, node *kong.Node) []flag {
	var flags []flag

	// Always include help flag
	flags = append(flags, flag{
		flags: "-h, --help",
		help:  "Show context-sensitive help.",
	})

	// Global flags first, then the command's own
	all := root.Flags
	if node != root {
		all = append(append([]*kong.Flag(nil), root.Flags...), node.Flags...)
	}

	for _, f := range all {
		if f.Name == "help" || f.Hidden {
			continue // Already added
		}

		flagStr := ""
		if f.Short != 0 {
			flagStr = fmt.Sprintf("-%c, --%s", f.Short, f.Name)
		} else {
			flagStr = fmt.Sprintf("--%s", f.Name)
		}

		if !f.IsBool() && f.PlaceHolder != "" {
			flagStr += "=" + strings.ToUpper(f.PlaceHolder)
		}

		// Only show default if it's a meaningful value (not empty, not type placeholder)
		defaultVal := ""
		if f.HasDefault && !f.IsBool() {
			val := f.Default
			if val != "" && val != "STRING" && val != "BOOL" {
				defaultVal = val
			}
		}

		flags = append(flags, flag{
			flags:      flagStr,
			help:       f.Help,
			defaultVal: defaultVal,
		})
	}

	return flags
}
