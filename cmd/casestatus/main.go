package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/docopt/docopt-go"
	cpg "github.com/umccr/cttso-pieriandx-gateway"
)

const usage = `report the submission status of diagnostics cases.

Usage:
  casestatus -h | --help
  casestatus --pdxurl=<url> --pdxemail=<email>
             --pdxtoken=<token>
             --pdxinstitution=<institution>
             [--caseids=<ids>]
             [--accessions=<accessions>]
Options:
  -h --help                      Show this screen.
  --pdxurl=<url>                 The diagnostics service base URL.
  --pdxemail=<email>             The diagnostics service auth email.
  --pdxtoken=<token>             The diagnostics service auth token.
  --pdxinstitution=<institution> The diagnostics service institution.
  --caseids=<ids>                Comma-separated case ids; all cases when omitted.
  --accessions=<accessions>      Comma-separated accession numbers to include.
`

type options struct {
	PierianDxBaseURL     string `docopt:"--pdxurl"`
	PierianDxEmail       string `docopt:"--pdxemail"`
	PierianDxAuthToken   string `docopt:"--pdxtoken"`
	PierianDxInstitution string `docopt:"--pdxinstitution"`
	CaseIDs              string `docopt:"--caseids"`
	Accessions           string `docopt:"--accessions"`
}

func handleError(err error, message string) {
	if err != nil {
		log.Fatalf("%s: %v", message, err)
	}
}

func splitList(value string) map[string]bool {
	wanted := make(map[string]bool)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			wanted[item] = true
		}
	}
	return wanted
}

func main() {
	args, err := docopt.ParseDoc(usage)
	handleError(err, "Arguments cannot be parsed")

	var opts options
	err = args.Bind(&opts)
	handleError(err, "Error binding arguments")

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	pieriandxService := cpg.NewPierianDxService(opts.PierianDxBaseURL, opts.PierianDxEmail, opts.PierianDxAuthToken, opts.PierianDxInstitution, cpg.DefaultRetryPolicy, logger)

	cases, err := pieriandxService.FetchCases(context.Background())
	handleError(err, "Cases cannot be fetched")

	wantedIDs := splitList(opts.CaseIDs)
	wantedAccessions := splitList(opts.Accessions)

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "case_id\taccession_number\tsubject_id\tlibrary_id\tassignee\tjob_status\treport_status\treport_signed_out")
	for _, c := range cases {
		if len(wantedIDs) > 0 || len(wantedAccessions) > 0 {
			if !wantedIDs[c.CaseID] && !wantedAccessions[c.AccessionNumber] {
				continue
			}
			delete(wantedIDs, c.CaseID)
			delete(wantedAccessions, c.AccessionNumber)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			c.CaseID, c.AccessionNumber, c.SubjectID, c.LibraryID, c.Assignee, c.JobStatus, c.ReportStatus, c.ReportSignedOut)
	}
	for id := range wantedIDs {
		fmt.Fprintf(w, "%s\t\t\t\t\t\t\t\n", id)
	}
	for accession := range wantedAccessions {
		fmt.Fprintf(w, "\t%s\t\t\t\t\t\t\n", accession)
	}
	handleError(w.Flush(), "Status table cannot be written")
}
