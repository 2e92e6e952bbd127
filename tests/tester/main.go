package main

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/pmezard/go-difflib/difflib"
)

const usage = "list <pattern>, run <pattern>, update <pattern>, exit"

// A scenario is a directory entry <name>.in holding the octoplan arguments,
// with the expected output in <name>.out and <name>.err next to it.
type scenario string

func completer(d prompt.Document) []prompt.Suggest {
	return nil
}

func handleError(err error) {
	if err != nil {
		log.Fatalln(err)
	}
}

func main() {
	if err := os.Chdir("tests/scenarios"); err != nil {
		if os.IsNotExist(err) {
			fmt.Println("tests/scenarios directory does not exist, please run the tester in the root of the project")
			os.Exit(1)
		}
		handleError(err)
	}
	if len(os.Args) > 1 && os.Args[1] == "ci" {
		failed := 0
		for _, s := range loadScenarios(".*") {
			fmt.Println(s)
			s.run()
			if s.diff(true) {
				failed++
			}
			s.cleanup()
		}
		if failed > 0 {
			fmt.Printf("%d scenarios failed\n", failed)
			os.Exit(1)
		}
		return
	}
	fmt.Println(usage)
	prompt.New(executeCommand, completer).Run()
}

var commandRegexp = regexp.MustCompile(`^(list|run|update)(?: ([^ ]+))?$`)

func executeCommand(command string) {
	if command == "exit" {
		fmt.Println("Exiting.")
		return
	}
	match := commandRegexp.FindStringSubmatch(strings.TrimSpace(command))
	if match == nil {
		fmt.Println("Unknown command.")
		fmt.Println(usage)
		return
	}
	pattern := match[2]
	if pattern == "" {
		pattern = "*"
	}
	scenarios := loadScenarios(strings.ReplaceAll(regexp.QuoteMeta(pattern), "\\*", "[^ ]+"))

	for _, s := range scenarios {
		fmt.Println(s)
		switch match[1] {
		case "list":
		case "run":
			s.run()
			if s.diff(true) {
				fmt.Println("Diff found, temporary output files left in place.")
			} else {
				s.cleanup()
			}
		case "update":
			s.run()
			if s.diff(false) {
				fmt.Println("Diff found, updating...")
				s.update()
			}
			s.cleanup()
		}
	}
}

func (s scenario) run() {
	body, err := os.ReadFile(string(s) + ".in")
	handleError(err)
	arguments := strings.TrimSpace(string(body))

	base := filepath.Base(string(s))
	cmd := exec.Command("bash", "-c", fmt.Sprintf("octoplan --no-cache %s > %s.tmpout 2> %s.tmperr", arguments, base, base))
	cmd.Dir = filepath.Dir(string(s))
	if err := cmd.Run(); err != nil {
		// A non-zero exit code is part of the expected output.
		if _, ok := err.(*exec.ExitError); !ok {
			handleError(err)
		}
	}
}

func (s scenario) diff(print bool) bool {
	found := false
	for _, stream := range []struct {
		ext, name string
	}{
		{"out", "Standard Output"},
		{"err", "Standard Error"},
	} {
		diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(readFileOrEmpty(string(s) + "." + stream.ext)),
			B:        difflib.SplitLines(readFileOrEmpty(string(s) + ".tmp" + stream.ext)),
			FromFile: "Expected " + stream.name,
			ToFile:   "Actual " + stream.name,
			Context:  2,
		})
		if diff != "" {
			if print {
				fmt.Println(diff)
			}
			found = true
		}
	}
	return found
}

func (s scenario) update() {
	handleError(os.Rename(string(s)+".tmpout", string(s)+".out"))
	handleError(os.Rename(string(s)+".tmperr", string(s)+".err"))
}

func (s scenario) cleanup() {
	handleError(os.RemoveAll(string(s) + ".tmpout"))
	handleError(os.RemoveAll(string(s) + ".tmperr"))
}

func readFileOrEmpty(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		handleError(err)
	}
	return string(data)
}

func loadScenarios(pattern string) []scenario {
	re := regexp.MustCompile(pattern)
	var scenarios []scenario
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if filepath.Ext(path) != ".in" {
			return nil
		}
		name := strings.TrimSuffix(path, ".in")
		if re.MatchString(name) {
			scenarios = append(scenarios, scenario(name))
		}
		return nil
	})
	handleError(err)

	return scenarios
}
