// package formatter renders users and saved audio pairs for the CLI (table, CSV, Markdown, JSON)
package formatter

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/desertthunder/harmonymaker/internal/models"
	"github.com/desertthunder/harmonymaker/internal/shared"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Format selects an output encoding.
type Format string

const (
	FormatTable    Format = "table"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// Formats lists the accepted values of [ParseFormat].
var Formats = []string{string(FormatTable), string(FormatCSV), string(FormatMarkdown), string(FormatJSON)}

// ParseFormat validates a --format flag value. Empty means [FormatTable].
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatCSV, FormatMarkdown, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want one of %v)", shared.ErrInvalidArgument, s, Formats)
	}
}

// Sheet is a header plus rows, rendered by [Render].
type Sheet struct {
	Headers []string
	Rows    [][]string
	// RightAlign holds zero-based indexes of numeric columns.
	RightAlign []int
}

// Render encodes sheet in format. JSON output is an array of header-keyed objects.
func Render(sheet Sheet, format Format) ([]byte, error) {
	if format == FormatJSON {
		records := make([]map[string]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			rec := make(map[string]string, len(sheet.Headers))
			for i, h := range sheet.Headers {
				if i < len(row) {
					rec[h] = row[i]
				}
			}
			records = append(records, rec)
		}
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return append(data, '\n'), nil
	}

	tw := newTable(sheet)
	var out string
	switch format {
	case FormatCSV:
		out = tw.RenderCSV()
	case FormatMarkdown:
		out = tw.RenderMarkdown()
	default:
		out = tw.Render()
	}
	return []byte(out + "\n"), nil
}

func newTable(sheet Sheet) table.Writer {
	columns := len(sheet.Headers)

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, columns)
	for i, h := range sheet.Headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range sheet.Rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		for _, right := range sheet.RightAlign {
			if right == i {
				align = text.AlignRight
			}
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw
}

// UsersSheet lists accounts with their sign-in methods and ages relative to now.
func UsersSheet(users []*models.User, now time.Time) Sheet {
	sheet := Sheet{
		Headers:    []string{"#", "ID", "Username", "Email", "Login", "Created"},
		RightAlign: []int{0},
	}

	for _, u := range users {
		sheet.Rows = append(sheet.Rows, []string{
			strconv.Itoa(u.Sequence()),
			u.ID(),
			u.Username(),
			u.Email(),
			loginMethods(u),
			humanize.RelTime(u.CreatedAt(), now, "ago", "from now"),
		})
	}
	return sheet
}

func loginMethods(u *models.User) string {
	switch {
	case u.HasPassword() && u.GoogleSubject() != "":
		return "password, google"
	case u.GoogleSubject() != "":
		return "google"
	case u.HasPassword():
		return "password"
	default:
		return "-"
	}
}

// PairsSheet lists saved pairs, newest first as returned by the repository.
func PairsSheet(pairs []models.AudioPair, now time.Time) Sheet {
	sheet := Sheet{Headers: []string{"Original", "Original URL", "Transformed URL", "Saved"}}

	for _, p := range pairs {
		transformed := p.TransformedURL
		if transformed == "" {
			transformed = "-"
		}
		sheet.Rows = append(sheet.Rows, []string{
			p.OriginalID,
			p.OriginalURL,
			transformed,
			humanize.RelTime(p.CreatedAt, now, "ago", "from now"),
		})
	}
	return sheet
}

// WriteExport renders sheet in format to path, defaulting the filename to {base}.{ext}.
func WriteExport(sheet Sheet, format Format, path, base string) (string, error) {
	if path == "" {
		path = base + "." + Extension(format)
	}

	data, err := Render(sheet, format)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

// Extension is the file extension for format.
func Extension(format Format) string {
	switch format {
	case FormatCSV:
		return "csv"
	case FormatMarkdown:
		return "md"
	case FormatJSON:
		return "json"
	default:
		return "txt"
	}
}
