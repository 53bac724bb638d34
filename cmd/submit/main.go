package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/docopt/docopt-go"
	cpg "github.com/umccr/cttso-pieriandx-gateway"
)

const usage = `submit a single sample to the diagnostics service.

Usage:
  submit -h | --help
  submit --pdxurl=<url> --pdxemail=<email>
         --pdxtoken=<token>
         --pdxinstitution=<institution>
         --pdxbucket=<bucket>
         --awsprofile=<profile>
         --awsregion=<region>
         --awssessionduration=<seconds>
         [--payload=<path>]
Options:
  -h --help                      Show this screen.
  --pdxurl=<url>                 The diagnostics service base URL.
  --pdxemail=<email>             The diagnostics service auth email.
  --pdxtoken=<token>             The diagnostics service auth token.
  --pdxinstitution=<institution> The diagnostics service institution.
  --pdxbucket=<bucket>           The diagnostics service intake S3 bucket.
  --awsprofile=<profile>         The AWS creds profile.
  --awsregion=<region>           The AWS region.
  --awssessionduration=<seconds> S3 client session lifetime before refresh.
  --payload=<path>               Submission request JSON; stdin when omitted.
`

type options struct {
	PierianDxBaseURL     string  `docopt:"--pdxurl"`
	PierianDxEmail       string  `docopt:"--pdxemail"`
	PierianDxAuthToken   string  `docopt:"--pdxtoken"`
	PierianDxInstitution string  `docopt:"--pdxinstitution"`
	PierianDxBucket      string  `docopt:"--pdxbucket"`
	AWSProfile           string  `docopt:"--awsprofile"`
	AWSRegion            string  `docopt:"--awsregion"`
	AWSSessionDuration   float64 `docopt:"--awssessionduration"`
	PayloadPath          string  `docopt:"--payload"`
}

func handleError(err error, message string) {
	if err != nil {
		log.Fatalf("%s: %v", message, err)
	}
}

func readPayload(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func main() {
	args, err := docopt.ParseDoc(usage)
	handleError(err, "Arguments cannot be parsed")

	var opts options
	err = args.Bind(&opts)
	handleError(err, "Error binding arguments")

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	payload, err := readPayload(opts.PayloadPath)
	handleError(err, "Submission request cannot be read")

	var request cpg.SubmissionRequest
	err = json.Unmarshal(payload, &request)
	handleError(err, "Submission request cannot be parsed")

	pieriandxService := cpg.NewPierianDxService(opts.PierianDxBaseURL, opts.PierianDxEmail, opts.PierianDxAuthToken, opts.PierianDxInstitution, cpg.DefaultRetryPolicy, logger)
	awsS3Service := cpg.NewAWSS3Service(opts.AWSProfile, opts.AWSRegion, opts.AWSSessionDuration)

	submission, err := cpg.NewCaseSubmission(pieriandxService, awsS3Service, opts.PierianDxBucket, request, logger)
	handleError(err, "Case submission cannot be prepared")

	if err := submission.Submit(context.Background()); err != nil {
		log.Printf("Case submission stopped at %s: %v\n", submission.State(), err)
		os.Exit(1)
	}
	log.Printf("Case %s submitted, informatics job %s launched\n", submission.CaseID, submission.InformaticsJobID)
}
