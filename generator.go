//go:build generator

/*
	Timelinize
	Copyright (c) 2024 Sergio Rubio

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dave/jennifer/jen"
)

// Generates datasources.go, which plugs the export formats listed in
// .formats (or .localformats, if present) into the trackmap binary.
//
// Lines are package paths; a bare name refers to a package under
// datasources/ in this module. Empty lines and "//" comments are ignored.
func main() {
	source := jen.NewFile("main")
	source.HeaderComment("//go:generate go run -tags generator generator.go")

	list := formats()
	if len(list) == 0 {
		return
	}

	for _, pkg := range list {
		source.Anon(pkg)
	}

	f, err := os.Create("datasources.go")
	if err != nil {
		genFailed(err)
	}
	defer f.Close()

	fmt.Fprintf(f, "%#v", source)
}

const localPrefix = "github.com/timelinize/trackmap/datasources/"

func formats() []string {
	var pkgs []string

	listFile := ".localformats"
	if _, err := os.Stat(listFile); os.IsNotExist(err) {
		listFile = ".formats"
	}

	f, err := os.Open(listFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "** no .formats file found\n")
			return pkgs
		}
		genFailed(err)
	}
	defer f.Close()

	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "//") || line == "" {
			continue
		}
		if !strings.Contains(line, "/") {
			line = localPrefix + line
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		pkgs = append(pkgs, line)
	}
	if err := scanner.Err(); err != nil {
		genFailed(err)
	}

	return pkgs
}

func genFailed(err error) {
	fmt.Fprintf(os.Stderr, "generating datasources.go failed: %s\n", err)
	os.Exit(1)
}
