// cmd/staticql/query.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	staticql "github.com/staticql/staticql"
	"github.com/staticql/staticql/internal/pager"
	"github.com/staticql/staticql/internal/query"
	"github.com/staticql/staticql/internal/repository"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query [source]",
	Short: "Run an ad-hoc query against an indexed source and print the page as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

var (
	queryRoot      string
	queryWhere     []string
	queryJoin      []string
	queryOrderBy   string
	queryDesc      bool
	queryCursor    string
	queryDirection string
	queryPageSize  int
	querySlug      string
)

func init() {
	queryCmd.Flags().StringVar(&queryRoot, "root", ".", "Repository root directory")
	queryCmd.Flags().StringArrayVar(&queryWhere, "where", nil, `Filter as "field:op:value", e.g. "status:eq:published"`)
	queryCmd.Flags().StringArrayVar(&queryJoin, "join", nil, "Relation key to materialize alongside each record")
	queryCmd.Flags().StringVar(&queryOrderBy, "order-by", "", "Field to sort by (default slug)")
	queryCmd.Flags().BoolVar(&queryDesc, "desc", false, "Sort descending")
	queryCmd.Flags().StringVar(&queryCursor, "cursor", "", "Opaque page cursor")
	queryCmd.Flags().StringVar(&queryDirection, "direction", "after", `"after" or "before"`)
	queryCmd.Flags().IntVar(&queryPageSize, "page-size", 20, "Page size")
	queryCmd.Flags().StringVar(&querySlug, "slug", "", "Fetch a single record by slug instead of running a filtered query")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	source := args[0]

	repo := repository.NewLocal(queryRoot)
	engine, err := staticql.Open(configPath, repo)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}

	closeMetrics, err := attachMetrics(engine)
	if err != nil {
		return fmt.Errorf("attach metrics: %w", err)
	}
	defer closeMetrics()

	ctx := context.Background()
	b := engine.From(source)

	if querySlug != "" {
		rec, found, err := b.Find(ctx, querySlug)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{"found": found, "data": rec})
	}

	for _, raw := range queryWhere {
		filter, err := parseWhereFlag(raw)
		if err != nil {
			return err
		}
		if filter.values != nil {
			b = b.WhereIn(filter.field, filter.values)
		} else {
			b = b.Where(filter.field, filter.op, filter.value)
		}
	}

	for _, j := range queryJoin {
		b = b.Join(j)
	}

	if queryOrderBy != "" {
		b = b.OrderBy(queryOrderBy, queryDesc)
	}

	direction := pager.After
	if queryDirection == "before" {
		direction = pager.Before
	}
	b = b.Cursor(queryCursor, direction)
	b = b.PageSize(queryPageSize)

	result, err := b.Exec(ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{"data": result.Data, "pageInfo": result.PageInfo})
}

type whereFlag struct {
	field  string
	op     query.Op
	value  string
	values []string
}

func parseWhereFlag(raw string) (whereFlag, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return whereFlag{}, fmt.Errorf(`invalid --where %q, expected "field:op:value"`, raw)
	}
	field, op, value := parts[0], query.Op(parts[1]), parts[2]
	if op == query.In {
		return whereFlag{field: field, values: strings.Split(value, ",")}, nil
	}
	return whereFlag{field: field, op: op, value: value}, nil
}

func printJSON(v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
