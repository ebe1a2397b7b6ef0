package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jblamy/quadstore/internal/config"
	"github.com/jblamy/quadstore/internal/engine"
	"github.com/jblamy/quadstore/internal/executor"
	"github.com/jblamy/quadstore/internal/log"
	"github.com/jblamy/quadstore/internal/ontio"
	"github.com/jblamy/quadstore/internal/resultsio"
	"github.com/jblamy/quadstore/internal/server"
	"github.com/jblamy/quadstore/internal/store"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "quadstore",
	Short: "A persistent RDF/OWL2 quadstore with a SPARQL-to-SQL compiler",
}

func init() {
	rootCmd.PersistentFlags().String("store", "./quadstore.db", "SQLite database file (':memory:' for a transient store)")
	rootCmd.PersistentFlags().String("config", "", "YAML config file (overrides --store and other defaults)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loadCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

// loadConfig resolves the effective Config from --config if given, else
// from the individual flags layered over config.Default().
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if configPath == "" {
		if storePath, _ := cmd.Flags().GetString("store"); storePath != "" {
			cfg.StorePath = storePath
		}
	}
	return cfg, nil
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Load sample FOAF data and run an example query",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := store.OpenStore(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		const demoGraph = "http://example.org/demo"
		const sample = `<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" .
<http://example.org/alice> <http://xmlns.com/foaf/0.1/age> "30"^^<http://www.w3.org/2001/XMLSchema#integer> .
<http://example.org/alice> <http://xmlns.com/foaf/0.1/knows> <http://example.org/bob> .
<http://example.org/bob> <http://xmlns.com/foaf/0.1/name> "Bob" .
<http://example.org/bob> <http://xmlns.com/foaf/0.1/age> "25"^^<http://www.w3.org/2001/XMLSchema#integer> .
<http://example.org/bob> <http://xmlns.com/foaf/0.1/knows> <http://example.org/carol> .
<http://example.org/carol> <http://xmlns.com/foaf/0.1/name> "Carol" .
<http://example.org/carol> <http://xmlns.com/foaf/0.1/age> "28"^^<http://www.w3.org/2001/XMLSchema#integer> .
`
		n, err := ontio.LoadNQuads(st, sample, demoGraph)
		if err != nil {
			return fmt.Errorf("loading sample data: %w", err)
		}
		fmt.Printf("Loaded %d quads into <%s>\n\n", n, demoGraph)

		eng := engine.New(st)
		graphID, err := st.CreateOntology(demoGraph)
		if err != nil {
			return err
		}

		query := `SELECT ?person ?name ?age WHERE {
    ?person <http://xmlns.com/foaf/0.1/name> ?name .
    ?person <http://xmlns.com/foaf/0.1/age> ?age .
}`
		fmt.Printf("Query:\n%s\n\n", query)

		result, err := eng.Query(context.Background(), query, graphID, nil)
		if err != nil {
			return fmt.Errorf("running demo query: %w", err)
		}
		printTable(result.Variables, result.Rows)
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <sparql>",
	Short: "Run a SPARQL query against the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		graphIRI, _ := cmd.Flags().GetString("graph")
		format, _ := cmd.Flags().GetString("format")

		st, err := store.OpenStore(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		graphID, err := st.CreateOntology(graphIRI)
		if err != nil {
			return fmt.Errorf("resolving graph %s: %w", graphIRI, err)
		}

		eng := engine.New(st)
		result, err := eng.Query(context.Background(), args[0], graphID, nil)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}

		f := resultsio.Format(format)
		return resultsio.Encode(os.Stdout, result, f)
	},
}

func init() {
	queryCmd.Flags().String("graph", "http://example.org/default", "Named graph IRI to query")
	queryCmd.Flags().String("format", "json", "Output format: json, xml, csv, tsv")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP SPARQL endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.ListenAddr
		}
		defaultGraph, _ := cmd.Flags().GetString("graph")

		st, err := store.OpenStore(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		srv, err := server.New(st, addr, defaultGraph)
		if err != nil {
			return fmt.Errorf("creating server: %w", err)
		}

		fmt.Printf("SPARQL endpoint: http://%s/sparql\n", addr)
		fmt.Printf("Web UI:          http://%s/\n", addr)
		return srv.Start()
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP bind address (overrides config's listen_addr)")
	serveCmd.Flags().String("graph", "http://example.org/default", "Default named graph IRI for queries with no override")
}

var loadCmd = &cobra.Command{
	Use:   "load <file.nq>",
	Short: "Bulk-load an N-Quads file into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defaultGraph, _ := cmd.Flags().GetString("graph")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		st, err := store.OpenStore(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		start := time.Now()
		n, err := ontio.LoadNQuads(st, string(data), defaultGraph)
		if err != nil {
			return fmt.Errorf("loading %s: %w", args[0], err)
		}
		elapsed := time.Since(start)
		fmt.Printf("Loaded %d quads from %s in %s (%.0f quads/sec)\n",
			n, args[0], elapsed, float64(n)/elapsed.Seconds())
		return nil
	},
}

func init() {
	loadCmd.Flags().String("graph", "http://example.org/default", "Default named graph IRI for quads with no explicit graph term")
}

func printTable(vars []string, rows []executor.Binding) {
	fmt.Print("| ")
	for _, v := range vars {
		fmt.Printf("%-20s | ", v)
	}
	fmt.Println()
	fmt.Println(strings.Repeat("-", (len(vars)*23)+1))

	for _, row := range rows {
		fmt.Print("| ")
		for _, v := range vars {
			val := ""
			if t, ok := row[v]; ok {
				val = t.String()
			}
			fmt.Printf("%-20s | ", val)
		}
		fmt.Println()
	}
	fmt.Printf("\n%d result(s)\n", len(rows))
}
