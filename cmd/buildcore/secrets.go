package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/thornforge/buildcore/internal/secrets"
	"golang.org/x/term"
)

func cmdSecrets(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: buildcore secrets <list|set|delete> [endpoint]")
		os.Exit(1)
	}

	s := secrets.New()

	switch args[0] {
	case "list":
		endpoints, err := s.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error listing secrets: %v\n", err)
			os.Exit(1)
		}
		if len(endpoints) == 0 {
			fmt.Println("No secrets stored")
			return
		}
		for _, e := range endpoints {
			fmt.Printf("  %s: ****\n", e)
		}

	case "set":
		if len(args) < 2 {
			fmt.Println("Usage: buildcore secrets set <endpoint>")
			os.Exit(1)
		}
		endpoint := strings.ToLower(args[1])
		if endpoint == "remote-cache" {
			fmt.Println("Enter credential as accessKey:secretKey")
		}
		fmt.Printf("Enter credential for %s: ", endpoint)
		value, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading credential: %v\n", err)
			os.Exit(1)
		}
		if err := s.Set(endpoint, string(value)); err != nil {
			fmt.Fprintf(os.Stderr, "error storing credential: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Credential for %s stored successfully\n", endpoint)

	case "delete":
		if len(args) < 2 {
			fmt.Println("Usage: buildcore secrets delete <endpoint>")
			os.Exit(1)
		}
		endpoint := strings.ToLower(args[1])
		if err := s.Delete(endpoint); err != nil {
			fmt.Fprintf(os.Stderr, "error deleting credential: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Credential for %s deleted\n", endpoint)

	default:
		fmt.Fprintf(os.Stderr, "unknown secrets command: %s\n", args[0])
		os.Exit(1)
	}
}
