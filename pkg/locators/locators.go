package locators

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// toolchainPackages are import path prefixes of code that belongs to the Go
// toolchain rather than to the program being debugged.
var toolchainPackages = []string{
	"runtime/",
	"reflect/",
	"internal/",
}

// goRoots are the Go installations whose sources count as toolchain code.
var goRoots = defaultGoRoots()

func defaultGoRoots() []string {
	var roots []string
	for _, root := range []string{runtime.GOROOT(), os.Getenv("GOROOT")} {
		if root == "" {
			continue
		}
		roots = append(roots, strings.TrimSuffix(filepath.ToSlash(root), "/"))
	}
	return roots
}

// IsRuntimeFile checks if a file path is Go runtime or standard reflection code
func IsRuntimeFile(filePath string) bool {
	if filePath == "" {
		return false
	}
	p := filepath.ToSlash(filePath)
	if strings.HasSuffix(p, "<autogenerated>") {
		return true
	}
	pkgPath, ok := goRootRelative(p)
	if !ok {
		return false
	}
	for _, prefix := range toolchainPackages {
		if strings.HasPrefix(pkgPath, prefix) {
			return true
		}
	}
	return false
}

// goRootRelative returns p relative to the src directory of a Go root.
func goRootRelative(p string) (string, bool) {
	for _, root := range goRoots {
		if rel, ok := strings.CutPrefix(p, root+"/src/"); ok {
			return rel, true
		}
	}
	// Toolchains downloaded by GOTOOLCHAIN live in the module cache.
	if i := strings.Index(p, "/golang.org/toolchain@"); i >= 0 {
		if j := strings.Index(p[i:], "/src/"); j >= 0 {
			return p[i+j+len("/src/"):], true
		}
	}
	// Binaries built with -trimpath report toolchain files by import path,
	// whose first element has no dot.
	if !strings.HasPrefix(p, "/") && !filepath.IsAbs(p) {
		first, _, _ := strings.Cut(p, "/")
		if !strings.Contains(first, ".") {
			return p, true
		}
	}
	return "", false
}

// IsUserCodeFile checks if a file path is within the user's working directory
// and not part of vendored or toolchain code
func IsUserCodeFile(filePath, workingDir string) bool {
	if filePath == "" || workingDir == "" {
		return false
	}

	absFilePath, err := filepath.Abs(filePath)
	if err != nil {
		absFilePath = filePath
	}
	absWorkingDir, err := filepath.Abs(workingDir)
	if err != nil {
		absWorkingDir = workingDir
	}

	rel, err := filepath.Rel(absWorkingDir, absFilePath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}

	p := filepath.ToSlash(rel)
	if strings.HasPrefix(p, "vendor/") || strings.Contains(p, "/vendor/") || strings.HasPrefix(p, ".git/") {
		return false
	}
	return !IsRuntimeFile(absFilePath)
}
