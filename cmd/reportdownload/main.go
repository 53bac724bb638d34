package main

import (
	"archive/zip"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/docopt/docopt-go"
	cpg "github.com/umccr/cttso-pieriandx-gateway"
)

const usage = `download signed-out reports from the diagnostics service.

Usage:
  reportdownload -h | --help
  reportdownload --pdxurl=<url> --pdxemail=<email>
                 --pdxtoken=<token>
                 --pdxinstitution=<institution>
                 --caseids=<ids>
                 [--format=<format>]
                 [--out=<path>]
Options:
  -h --help                      Show this screen.
  --pdxurl=<url>                 The diagnostics service base URL.
  --pdxemail=<email>             The diagnostics service auth email.
  --pdxtoken=<token>             The diagnostics service auth token.
  --pdxinstitution=<institution> The diagnostics service institution.
  --caseids=<ids>                Comma-separated case ids to download reports for.
  --format=<format>              Report format, pdf or json [default: pdf].
  --out=<path>                   Output zip path [default: reports.zip].
`

type options struct {
	PierianDxBaseURL     string `docopt:"--pdxurl"`
	PierianDxEmail       string `docopt:"--pdxemail"`
	PierianDxAuthToken   string `docopt:"--pdxtoken"`
	PierianDxInstitution string `docopt:"--pdxinstitution"`
	CaseIDs              string `docopt:"--caseids"`
	Format               string `docopt:"--format"`
	OutPath              string `docopt:"--out"`
}

func handleError(err error, message string) {
	if err != nil {
		log.Fatalf("%s: %v", message, err)
	}
}

func main() {
	args, err := docopt.ParseDoc(usage)
	handleError(err, "Arguments cannot be parsed")

	var opts options
	err = args.Bind(&opts)
	handleError(err, "Error binding arguments")

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	pieriandxService := cpg.NewPierianDxService(opts.PierianDxBaseURL, opts.PierianDxEmail, opts.PierianDxAuthToken, opts.PierianDxInstitution, cpg.DefaultRetryPolicy, logger)

	ctx := context.Background()

	out, err := os.Create(opts.OutPath)
	handleError(err, "Output zip cannot be created")
	defer out.Close()
	archive := zip.NewWriter(out)

	downloaded := 0
	for _, caseID := range strings.Split(opts.CaseIDs, ",") {
		caseID = strings.TrimSpace(caseID)
		if caseID == "" {
			continue
		}
		diagnosticsCase, err := pieriandxService.CaseStatus(ctx, caseID)
		if err != nil {
			logger.Error("Case cannot be fetched", "case_id", caseID, "error", err)
			continue
		}
		if diagnosticsCase.ReportID == "" {
			logger.Warn("Case has no report yet", "case_id", caseID)
			continue
		}
		content, err := pieriandxService.DownloadReport(ctx, caseID, diagnosticsCase.ReportID, opts.Format)
		if err != nil {
			logger.Error("Report cannot be downloaded", "case_id", caseID, "report_id", diagnosticsCase.ReportID, "error", err)
			continue
		}
		name := fmt.Sprintf("%s_%s.%s", diagnosticsCase.AccessionNumber, diagnosticsCase.ReportID, opts.Format)
		entry, err := archive.Create(name)
		handleError(err, "Zip entry cannot be created")
		_, err = entry.Write(content)
		handleError(err, "Report cannot be written to the zip")
		downloaded++
	}

	handleError(archive.Close(), "Zip cannot be finalized")
	log.Printf("Downloaded %d report(s) to %s\n", downloaded, opts.OutPath)
}
