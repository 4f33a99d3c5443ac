// Command enginectl brings up and inspects a searchcore engine: serve runs
// an engine until interrupted, schema inspects a saved schema file, and
// compact runs one lid-space compaction pass over an engine's data
// directory.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	searchcore "github.com/kartikbazzad/bunbase/searchcore"
	"github.com/kartikbazzad/bunbase/searchcore/internal/schema"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "enginectl",
	Short: "enginectl - operate a searchcore document database",
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", "data", "Engine data directory")
	rootCmd.PersistentFlags().String("schema", "", "Schema file to load (optional)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(compactCmd)
}

func openEngine(cmd *cobra.Command, startMaintenance bool) (*searchcore.Engine, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	schemaPath, _ := cmd.Flags().GetString("schema")

	opts := searchcore.DefaultOptions(dataDir)
	opts.StartMaintenance = startMaintenance
	opts.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if schemaPath != "" {
		s, ok := schema.Load(schemaPath)
		if !ok {
			return nil, fmt.Errorf("cannot load schema from %s", schemaPath)
		}
		opts.Schema = s
	}
	return searchcore.Open(opts)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an engine until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(cmd, true)
		if err != nil {
			return err
		}
		defer engine.Close()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema <file>",
	Short: "Show the fields of a saved schema file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ok := schema.Load(args[0])
		if !ok {
			return fmt.Errorf("cannot load schema from %s", args[0])
		}
		for _, f := range s.IndexFields() {
			fmt.Printf("index     %-20s %s %s\n", f.Name, f.DataType, f.CollectionType)
		}
		for _, f := range s.AttributeFields() {
			fmt.Printf("attribute %-20s %s %s\n", f.Name, f.DataType, f.CollectionType)
		}
		for _, f := range s.SummaryFields() {
			fmt.Printf("summary   %-20s %s\n", f.Name, f.DataType)
		}
		for _, fs := range s.FieldSets() {
			fmt.Printf("fieldset  %-20s %v\n", fs.Name, fs.Fields)
		}
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Run one lid-space compaction pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(cmd, false)
		if err != nil {
			return err
		}
		defer engine.Close()
		engine.CompactLidSpace()
		return nil
	},
}
