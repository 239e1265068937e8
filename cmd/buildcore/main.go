package main

import (
	"fmt"
	"os"

	"github.com/thornforge/buildcore/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "build":
		cmdBuild(os.Args[2:])
	case "watch":
		cmdWatch(os.Args[2:])
	case "stop":
		cmdStop()
	case "status":
		cmdStatus()
	case "setup":
		cmdSetup(os.Args[2:])
	case "secrets":
		cmdSecrets(os.Args[2:])
	case "cache-stats":
		cmdCacheStats()
	case "cache-clear":
		cmdCacheClear()
	case "init-config":
		cmdInitConfig()
	case "install-service":
		cmdInstallService()
	case "config-export":
		cmdConfigExport(os.Args[2:])
	case "config-import":
		cmdConfigImport(os.Args[2:])
	case "version":
		fmt.Println(version.String())
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: buildcore <command> [options] [entry points...]

Commands:
  build            Build the given entry points once and exit
  watch            Build entry points and keep rebuilding on change
  stop             Stop the running daemon
  status           Show daemon status and summary stats
  setup            Interactive setup wizard
  secrets          Manage stored credentials (list|set|delete <endpoint>)
  cache-stats      Print the on-disk size of the persistent cache
  cache-clear      Delete the persistent cache database
  init-config      Generate default config file
  config-export    Export current config to a TOML file
  config-import    Import config from a TOML file
  install-service  Install as system service (launchd on macOS)
  version          Print version information
  help             Show this help message

Options:
  --foreground       Run in foreground (with 'watch')
  --non-interactive  Skip interactive prompts (with 'setup')`)
}
