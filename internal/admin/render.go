package admin

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// WriteList prints v as an aligned table.
func WriteList(w io.Writer, v ListView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tCUSTOMER\tSTATUS\tSTEP\tDOC TYPE\tCREATED\tUPDATED")
	if v.Empty {
		fmt.Fprintln(tw, EmptyMessage)
	}
	for _, r := range v.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.SessionID, r.CustomerID, r.Status, r.CurrentStep, r.DocType, r.CreatedAt, r.UpdatedAt)
	}
	return tw.Flush()
}

// WriteDetail prints the session fields followed by its documents.
func WriteDetail(w io.Writer, v DetailView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fields := []struct{ k, v string }{
		{"Session ID", v.SessionID},
		{"Customer ID", v.CustomerID},
		{"Status", v.Status},
		{"Current step", v.CurrentStep},
		{"Failure reason", v.FailureReason},
		{"Selfie URL", v.SelfieURL},
		{"Face match score", v.FaceScore},
		{"Retries (select)", v.RetriesSelect},
		{"Retries (scan)", v.RetriesScan},
		{"Retries (upload)", v.RetriesUpload},
		{"Retries (selfie)", v.RetriesSelfie},
	}
	for _, f := range fields {
		fmt.Fprintf(tw, "%s:\t%s\n", f.k, f.v)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOCUMENT\tTYPE\tNUMBER\tSTORAGE\tVALID\tQUALITY\tCREATED")
	for _, d := range v.Documents {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.DocumentID, d.DocType, d.DocNumber, d.StorageURL, d.Valid, d.Quality, d.CreatedAt)
	}
	return tw.Flush()
}
