package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/stratus/internal/loader"
	"github.com/ajitpratap0/stratus/internal/ops"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configFile, logLevel string

	root := &cobra.Command{
		Use:   "stratus",
		Short: "Stratus - dataflow execution engine",
		Long: `Stratus runs operator trees described in YAML pipeline files. Sources load
tables and sample rows; operators such as map, shuffle and batch transform
them concurrently and the root's output is written as JSON lines.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the engine configuration file (YAML)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Stratus v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List operators, loaders and transforms",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Operators:  %s\n", strings.Join(ops.Kinds(), ", "))
			fmt.Printf("Loaders:    %s\n", strings.Join(loader.List(), ", "))
			fmt.Printf("Transforms: %s\n", strings.Join(ops.Transforms(), ", "))
		},
	})

	var pipelineFile string
	var showAll, prepare bool
	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the operator tree of a pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printPipeline(cmd.OutOrStdout(), printOptions{
				Pipeline: pipelineFile,
				Config:   configFile,
				LogLevel: logLevel,
				ShowAll:  showAll,
				Prepare:  prepare,
			})
		},
	}
	printCmd.Flags().StringVarP(&pipelineFile, "pipeline", "p", "", "Path to the pipeline file (required)")
	printCmd.Flags().BoolVarP(&showAll, "all", "a", false, "Show every operator setting")
	printCmd.Flags().BoolVar(&prepare, "prepare", false, "Prepare the tree first, loading every source")
	_ = printCmd.MarkFlagRequired("pipeline")
	root.AddCommand(printCmd)

	var output, compression string
	var timeout time.Duration
	var maxBuffers int64
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a pipeline and write its output",
		Long: `Run a pipeline and write the root operator's rows as JSON lines.

Example:
  stratus run --pipeline train.yaml --output rows.jsonl.zst`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), runOptions{
				Pipeline:    pipelineFile,
				Config:      configFile,
				LogLevel:    logLevel,
				Output:      output,
				Compression: compression,
				Timeout:     timeout,
				MaxBuffers:  maxBuffers,
			})
		},
	}
	runCmd.Flags().StringVarP(&pipelineFile, "pipeline", "p", "", "Path to the pipeline file (required)")
	runCmd.Flags().StringVarP(&output, "output", "o", "-", "Output file; - writes to stdout")
	runCmd.Flags().StringVar(&compression, "compression", "", "Output compression (gzip, snappy, lz4, zstd, s2, deflate); detected from the output extension when empty")
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop the pipeline after this long; 0 runs to completion")
	runCmd.Flags().Int64Var(&maxBuffers, "max-buffers", 0, "Stop after this many data buffers; 0 reads everything")
	_ = runCmd.MarkFlagRequired("pipeline")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
