//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binary    = "bin/server"
	wireDir   = "./internal/app"
	docsDir   = "./cmd/server/docs"
	coverFile = "coverage.out"
)

// swagDirs are the packages carrying swag annotations.
var swagDirs = "./cmd/server,./internal/adapter/inbound/http/transaction,./internal/model,./internal/utils/errors"

var Default = Build

// Build compiles the reconciler binary into bin/.
func Build() error {
	mg.Deps(Generate)
	fmt.Println("Building", binary)
	return sh.RunWith(map[string]string{"CGO_ENABLED": "0"},
		"go", "build", "-ldflags", "-X main.Version="+version(), "-o", binary, "./cmd/server")
}

func version() string {
	if v := os.Getenv("VERSION"); v != "" {
		return v
	}
	out, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || out == "" {
		return "dev"
	}
	return out
}

// Generate refreshes wire_gen.go and the swagger docs.
func Generate() {
	mg.Deps(Wire, Swagger)
}

// Wire regenerates the dependency graph in internal/app.
func Wire() error {
	fmt.Println("Running wire in", wireDir)
	return sh.Run("wire", "gen", wireDir)
}

// Swagger regenerates the OpenAPI docs served under /swagger.
func Swagger() error {
	fmt.Println("Generating swagger docs")
	return sh.Run("swag", "init", "-g", "docs.go", "-d", swagDirs, "-o", docsDir)
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}

// TestCover writes a coverage profile and prints the per-function summary.
func TestCover() error {
	if err := sh.RunV("go", "test", "-race", "-covermode=atomic", "-coverprofile="+coverFile, "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func="+coverFile)
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Vet runs go vet.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Tidy runs go mod tidy.
func Tidy() error {
	return sh.Run("go", "mod", "tidy")
}

// Clean removes build and coverage output. Generated sources are committed
// and stay in place.
func Clean() error {
	if err := sh.Rm("bin"); err != nil {
		return err
	}
	return sh.Rm(coverFile)
}

// Migrate applies the schema to the configured database.
func Migrate() error {
	mg.Deps(Build)
	return sh.RunV("./"+binary, "migrate")
}

// Dev builds and runs the server in the foreground.
func Dev() error {
	mg.Deps(Build)
	return sh.RunV("./"+binary, "serve")
}

// All runs tidy, generate, vet, lint, test and build in order.
func All() {
	mg.SerialDeps(Tidy, Generate, Vet, Lint, Test, Build)
}

// CI is the pipeline run on every push.
func CI() {
	mg.SerialDeps(Tidy, Generate, Vet, TestCover)
}

// Install installs the code generators and linter.
func Install() error {
	for _, tool := range []string{
		"github.com/google/wire/cmd/wire@latest",
		"github.com/swaggo/swag/cmd/swag@latest",
		"github.com/golangci/golangci-lint/cmd/golangci-lint@latest",
	} {
		fmt.Println("Installing", tool)
		if err := sh.Run("go", "install", tool); err != nil {
			return fmt.Errorf("install %s: %w", tool, err)
		}
	}
	return nil
}
