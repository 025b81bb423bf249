// Command hashpw prints a bcrypt hash for a password, or checks a password
// against an existing hash with -verify.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"onephoto/core"
)

const demoPassword = "TestPassword%12"

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin *os.File, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hashpw", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost factor")
	verify := fs.String("verify", "", "hash to check the password against")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	password, err := passwordInput(fs.Args(), stdin, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "hashpw: %v\n", err)
		return 2
	}

	if *verify != "" {
		ok, err := core.VerifyPassword(*verify, password)
		if err != nil {
			fmt.Fprintf(stderr, "hashpw: %v\n", err)
			return 2
		}
		if !ok {
			fmt.Fprintln(stdout, "mismatch")
			return 1
		}
		fmt.Fprintln(stdout, "match")
		return 0
	}

	hash, err := core.HashPassword(password, *cost)
	if err != nil {
		if errors.Is(err, core.ErrTooLong) {
			fmt.Fprintf(stderr, "hashpw: password longer than %d bytes\n", core.MaxPasswordBytes)
		} else {
			fmt.Fprintf(stderr, "hashpw: %v\n", err)
		}
		return 2
	}
	fmt.Fprintln(stdout, hash)
	return 0
}

// passwordInput takes the password from the first argument, a no-echo
// prompt on a terminal, or the first line of stdin, in that order. With no
// input at all it falls back to the demo password.
func passwordInput(args []string, stdin *os.File, stderr io.Writer) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if stdin == nil {
		return demoPassword, nil
	}

	fd := int(stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(stderr, "Password: ")
		b, err := readPassword(fd)
		fmt.Fprintln(stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return demoPassword, nil
	}
	return line, nil
}
