package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/thornforge/buildcore/internal/config"
	"github.com/thornforge/buildcore/internal/daemon"
)

func cmdBuild(args []string) {
	entryPoints, _ := splitEntryPoints(args)
	if len(entryPoints) == 0 {
		fmt.Fprintln(os.Stderr, "usage: buildcore build <entry point...>")
		os.Exit(1)
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.Watch.Enabled = false
	cfg.Dashboard.Enabled = false

	if err := daemon.Run(cfg, entryPoints, true); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func cmdWatch(args []string) {
	entryPoints, foreground := splitEntryPoints(args)
	if len(entryPoints) == 0 {
		fmt.Fprintln(os.Stderr, "usage: buildcore watch <entry point...> [--foreground]")
		os.Exit(1)
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.Watch.Enabled = true

	if err := daemon.Run(cfg, entryPoints, foreground); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func splitEntryPoints(args []string) (entryPoints []string, foreground bool) {
	for _, a := range args {
		switch a {
		case "--foreground", "-f":
			foreground = true
		default:
			entryPoints = append(entryPoints, a)
		}
	}
	return entryPoints, foreground
}

func cmdStop() {
	if err := daemon.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "error stopping daemon: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("buildcore stopped")
}

func cmdStatus() {
	if err := daemon.Status(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func cmdSetup(args []string) {
	nonInteractive := false
	for _, a := range args {
		if a == "--non-interactive" {
			nonInteractive = true
		}
	}

	if nonInteractive {
		cmdInitConfig()
		fmt.Println("Setup complete. Run 'buildcore watch <entry point>' to begin.")
		return
	}

	fmt.Println("buildcore Setup Wizard")
	fmt.Println("======================")
	fmt.Println()

	cmdInitConfig()

	fmt.Println("\nTo add a remote farm endpoint token, run: buildcore secrets set farm")
	fmt.Println()
	fmt.Println("Setup complete. Run 'buildcore watch <entry point>' to begin.")
}

func cmdInitConfig() {
	if err := config.InitConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "error generating config: %v\n", err)
		os.Exit(1)
	}
}

func cmdInstallService() {
	if err := daemon.InstallService(); err != nil {
		fmt.Fprintf(os.Stderr, "error installing service: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Service installed successfully")
}

func cmdConfigExport(args []string) {
	path := "buildcore-export.toml"
	if len(args) > 0 {
		path = args[0]
	}
	config.Load("")
	if err := config.ExportConfig(path); err != nil {
		fmt.Fprintf(os.Stderr, "error exporting config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config exported to %s\n", path)
}

func cmdCacheStats() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	path := filepath.Join(cfg.Build.CacheDir, "cache.db")
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		fmt.Println("No persistent cache found")
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading cache: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Cache: %s\n", path)
	fmt.Printf("Size:  %.2f MB\n", float64(info.Size())/(1024*1024))
}

func cmdCacheClear() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	path := filepath.Join(cfg.Build.CacheDir, "cache.db")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "error clearing cache: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Persistent cache cleared")
}

func cmdConfigImport(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: buildcore config-import <file>")
		os.Exit(1)
	}
	if err := config.ImportConfig(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "error importing config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config imported from %s\n", args[0])
}
