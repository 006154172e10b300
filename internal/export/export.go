// Package export writes leads as a CSV download.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/madhatter5501/leadboard/kanban"
)

// ErrNothingToExport is returned for an empty lead list.
var ErrNothingToExport = errors.New("nenhum dado para exportar")

// Header is the first line of every export.
const Header = "Nome,Email,Telefone,Empresa,Status,Origem,Data Criação"

// FileName returns the download name for an export made at now.
func FileName(now time.Time) string {
	return "leads_export_" + now.Format("2006-01-02") + ".csv"
}

// Write renders leads as CSV. Name and company are always quoted, the other
// columns are written as-is.
func Write(w io.Writer, leads []kanban.Lead) error {
	if len(leads) == 0 {
		return ErrNothingToExport
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, Header)
	for _, l := range leads {
		fmt.Fprintf(bw, "%s,%s,%s,%s,%s,%s,%s\n",
			quote(l.Name),
			l.Email,
			l.Phone,
			quote(l.Company),
			l.Status,
			l.Source.Normalize(),
			l.CreatedAt.Format("02/01/2006"),
		)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
