package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
)

// seqlint forbids direct access to the unexported sequence/tail/head
// fields outside the files that define their atomic accessor methods
// (header.go, slot.go). Everywhere else must go through Sequence/Tail/
// Head/AddTail/etc., never a bare field read or write, since those
// fields are read and written across process boundaries and a plain
// Go field access carries no memory-ordering guarantee.
func main() {
	dir := flag.String("dir", ".", "directory to analyze")
	flag.Parse()

	var issues []string
	hasError := false

	err := filepath.Walk(*dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		if isAccessorFile(path) {
			return nil
		}

		found := checkFile(path)
		if len(found) > 0 {
			issues = append(issues, found...)
			hasError = true
		}
		return nil
	})

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, issue := range issues {
		fmt.Println(issue)
	}
	if hasError {
		os.Exit(1)
	}
}

func isAccessorFile(path string) bool {
	base := filepath.Base(path)
	return base == "header.go" || base == "slot.go"
}

var forbiddenFields = map[string]bool{
	"sequence": true,
	"tail":     true,
	"head":     true,
}

func checkFile(filename string) []string {
	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, filename, nil, parser.ParseComments)
	if err != nil {
		return nil
	}

	var issues []string

	ast.Inspect(node, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		if !forbiddenFields[sel.Sel.Name] {
			return true
		}
		pos := fset.Position(sel.Pos())
		issues = append(issues, fmt.Sprintf(
			"%s:%d:%d: direct access to %s is forbidden outside header.go/slot.go, use the atomic accessor methods instead",
			filename, pos.Line, pos.Column, sel.Sel.Name,
		))
		return true
	})

	return issues
}
