package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"

	"rvcc/internal/analysis"
	"rvcc/internal/config"
	"rvcc/internal/diag"
	"rvcc/internal/emit"
	"rvcc/internal/frame"
	"rvcc/internal/frontend/irgen"
	"rvcc/internal/frontend/parser"
	"rvcc/internal/lower"
	"rvcc/internal/passmanager"
	"rvcc/internal/peephole"
	"rvcc/internal/regalloc"
	"rvcc/internal/strength"
)

func main() {
	optLevel := flag.String("O", "1", "optimization level (0 or 1)")
	output := flag.String("o", "", "output assembly path (default: stdout)")
	dumpAST := flag.Bool("dump-ast", false, "print the parsed AST and stop")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: rvcc [flags] <file.c>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	path := flag.Arg(0)

	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("failed to read %s: %s", path, err)
		os.Exit(1)
	}

	prog, err := parser.ParseSource(path, string(source))
	if err != nil {
		reportParseError(string(source), err)
		os.Exit(1)
	}

	if *dumpAST {
		fmt.Println(prog.String())
		return
	}

	mod, err := irgen.Build(prog)
	if err != nil {
		if ce, ok := err.(*irgen.CoreError); ok {
			fmt.Print(diag.Report(diag.SourceError{
				Filename: path,
				Line:     ce.Pos.Line,
				Column:   ce.Pos.Column,
				Message:  ce.Message,
			}, string(source)))
		} else {
			color.Red("error: %s", err)
		}
		os.Exit(1)
	}

	cfg := config.Default()
	cfg.Opt = config.ParseOptLevel(*optLevel)

	level := passmanager.O0
	if cfg.Opt == config.O1 {
		level = passmanager.O1
	}
	pipeline := passmanager.NewPipeline(level)
	pipeline.Run(mod, analysis.NewCache())

	lm := lower.Lower(mod)
	strength.Reduce(lm, cfg)
	peephole.PreRA(lm)
	regalloc.Allocate(lm)
	frame.Run(lm)
	peephole.PostRA(lm)

	asm := emit.Emit(lm)
	if *output == "" {
		fmt.Print(asm)
	} else if err := os.WriteFile(*output, []byte(asm), 0o644); err != nil {
		color.Red("failed to write %s: %s", *output, err)
		os.Exit(1)
	}

	diag.Success("Successfully compiled %s", path)
}

// reportParseError prints a friendly caret-style parse error message.
func reportParseError(src string, err error) {
	pe, ok := err.(participle.Error)
	if !ok {
		color.Red("Unexpected error: %s", err)
		return
	}

	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		color.Red("Syntax error at unknown location: %s", err)
		return
	}

	line := lines[pos.Line-1]
	caret := strings.Repeat(" ", pos.Column-1) + "^"

	color.Red("❌ Syntax error in %s at line %d, column %d:", pos.Filename, pos.Line, pos.Column)
	fmt.Println(line)
	color.HiRed(caret)
	fmt.Printf("→ %s\n", pe.Message())
}
