// Package flagx helps several flag sets share one os.Args without tripping
// over each other's unknown flags.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs keeps only the flags named in allowedFlags (and their values)
// from args. Both "-c file" and "-c=file" forms are recognized; a value is
// taken from the next argument only when it does not itself start with "-".
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if _, keep := allowed[name]; keep {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, keep := allowed[arg]; !keep {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// ConfigFile returns the JSON config path passed via -c or -config in args,
// or "" when neither is present.
func ConfigFile(args []string) string {
	return stringFlag(args, "", "c", "config")
}

// EnvFile returns the dotenv path passed via -env in args, or def.
func EnvFile(args []string, def string) string {
	return stringFlag(args, def, "env")
}

// JsonConfigFlags is ConfigFile over the process arguments.
func JsonConfigFlags() string {
	return ConfigFile(os.Args[1:])
}

func stringFlag(args []string, def string, names ...string) string {
	allowed := make([]string, 0, len(names))
	for _, n := range names {
		allowed = append(allowed, "-"+n)
	}

	value := def
	fs := flag.NewFlagSet("flagx", flag.ContinueOnError)
	fs.SetOutput(discard{})
	for _, n := range names {
		fs.StringVar(&value, n, def, "")
	}
	_ = fs.Parse(FilterArgs(args, allowed))

	return value
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
