package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrlokans/campuslib/internal/catalog"
	"github.com/mrlokans/campuslib/internal/config"
	"github.com/mrlokans/campuslib/internal/entities"
	"github.com/mrlokans/campuslib/internal/metadata"
)

// BookCreator adds one title to the catalog.
type BookCreator interface {
	Create(ctx context.Context, in catalog.CreateBookInput) (*entities.Book, error)
}

// ISBNLookup fills in details for rows that only carry an ISBN.
type ISBNLookup interface {
	LookupISBN(ctx context.Context, isbn string) (*metadata.BookInfo, error)
}

type ImportOptions struct {
	Verbose bool
	Lookup  ISBNLookup // nil disables lookups
}

// ImportResult summarises a CSV import.
type ImportResult struct {
	Rows     int
	Imported int
	Errors   []RowError
}

type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

var importColumns = []string{"title", "author", "isbn", "total_copies", "cover_url"}

func newImportBooksCommand(loadConfig func() *config.Config) *cobra.Command {
	var dryRun, verbose, lookup bool

	cmd := &cobra.Command{
		Use:   "import-books <file.csv>",
		Short: "Add books to the catalog from a CSV file",
		Long: `Add books to the catalog from a CSV file.

The first row is a header naming the columns. Recognised columns are
title, author, isbn, total_copies and cover_url, in any order; title or
isbn must be present. Rows that fail validation are reported and skipped.

With --lookup, rows with an ISBN get their missing title, author and
cover_url from OpenLibrary.`,
		Example: `  campuslib import-books books.csv
  campuslib import-books --dry-run --verbose books.csv
  campuslib import-books --lookup isbns.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			out := cmd.OutOrStdout()
			var creator BookCreator = dryRunCreator{}
			if !dryRun {
				app, err := openApp(loadConfig)
				if err != nil {
					return err
				}
				defer app.Close()
				creator = app.Catalog
			} else {
				fmt.Fprintln(out, "DRY RUN MODE - No changes will be made")
			}

			opts := ImportOptions{Verbose: verbose}
			if lookup {
				opts.Lookup = metadata.NewOpenLibraryClient()
			}
			result, err := ImportBooks(cmd.Context(), creator, f, out, opts)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "\n=== Import Summary ===")
			fmt.Fprintf(out, "Books imported: %d/%d\n", result.Imported, result.Rows)
			if len(result.Errors) > 0 {
				fmt.Fprintf(out, "\n%d errors occurred:\n", len(result.Errors))
				for _, rowErr := range result.Errors {
					fmt.Fprintf(out, "  [ERROR] %s\n", rowErr)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse and validate the file without writing to the database")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every imported book")
	cmd.Flags().BoolVar(&lookup, "lookup", false, "Fill missing details of rows with an ISBN from OpenLibrary")
	return cmd
}

// ImportBooks reads CSV rows from r and creates one book per row. A broken
// header aborts the import; bad rows are collected in the result.
func ImportBooks(ctx context.Context, books BookCreator, r io.Reader, out io.Writer, opts ImportOptions) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty CSV file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	columns, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return result, fmt.Errorf("failed to read CSV: %w", err)
			}
			result.Rows++
			result.Errors = append(result.Errors, RowError{Line: parseErr.StartLine, Err: parseErr.Err})
			continue
		}
		line, _ := reader.FieldPos(0)
		if isBlank(record) {
			continue
		}
		result.Rows++

		in, err := rowToInput(columns, record)
		if err != nil {
			result.Errors = append(result.Errors, RowError{Line: line, Err: err})
			continue
		}

		if opts.Lookup != nil && in.ISBN != "" && needsLookup(in) {
			if err := fillFromLookup(ctx, opts.Lookup, &in); err != nil {
				result.Errors = append(result.Errors, RowError{Line: line, Err: err})
				continue
			}
		}

		book, err := books.Create(ctx, in)
		if err != nil {
			result.Errors = append(result.Errors, RowError{Line: line, Err: err})
			if opts.Verbose {
				fmt.Fprintf(out, "  [ERROR] %q: %v\n", in.Title, err)
			}
			continue
		}
		result.Imported++
		if opts.Verbose {
			fmt.Fprintf(out, "  [OK] %d %q by %s (%d copies)\n", book.ID, book.Title, authorOrUnknown(book.Author), book.TotalCopies)
		}
	}
	return result, nil
}

func mapColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if !knownColumn(name) {
			return nil, fmt.Errorf("unknown CSV column %q (expected %s)", name, strings.Join(importColumns, ", "))
		}
		if _, dup := columns[name]; dup {
			return nil, fmt.Errorf("duplicate CSV column %q", name)
		}
		columns[name] = i
	}
	_, hasTitle := columns["title"]
	_, hasISBN := columns["isbn"]
	if !hasTitle && !hasISBN {
		return nil, fmt.Errorf("CSV header must include a title or isbn column")
	}
	return columns, nil
}

func rowToInput(columns map[string]int, record []string) (catalog.CreateBookInput, error) {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	in := catalog.CreateBookInput{
		Title:    field("title"),
		Author:   field("author"),
		ISBN:     field("isbn"),
		CoverURL: field("cover_url"),
	}
	if raw := field("total_copies"); raw != "" {
		copies, err := strconv.Atoi(raw)
		if err != nil {
			return in, fmt.Errorf("total_copies %q is not a number", raw)
		}
		in.TotalCopies = &copies
	}
	return in, nil
}

func needsLookup(in catalog.CreateBookInput) bool {
	return in.Title == "" || in.Author == "" || in.CoverURL == ""
}

// fillFromLookup only sets fields the row left empty. The row keeps its own
// ISBN spelling.
func fillFromLookup(ctx context.Context, lookup ISBNLookup, in *catalog.CreateBookInput) error {
	info, err := lookup.LookupISBN(ctx, in.ISBN)
	if err != nil {
		if in.Title != "" && !errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	if in.Title == "" {
		in.Title = info.Title
	}
	if in.Author == "" {
		in.Author = info.Author
	}
	if in.CoverURL == "" {
		in.CoverURL = info.CoverURL
	}
	return nil
}

func knownColumn(name string) bool {
	for _, c := range importColumns {
		if c == name {
			return true
		}
	}
	return false
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func authorOrUnknown(author string) string {
	if author == "" {
		return "(no author)"
	}
	return author
}

// dryRunCreator accepts every row that parses.
type dryRunCreator struct{}

func (dryRunCreator) Create(_ context.Context, in catalog.CreateBookInput) (*entities.Book, error) {
	copies := 1
	if in.TotalCopies != nil {
		copies = *in.TotalCopies
	}
	if in.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	return &entities.Book{Title: in.Title, Author: in.Author, TotalCopies: copies, AvailableCopies: copies}, nil
}
