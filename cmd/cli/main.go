package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/docopt/docopt-go"
	cpg "github.com/umccr/cttso-pieriandx-gateway"
	"go.opentelemetry.io/otel"
)

const usage = `cttso-pieriandx-gateway.

Usage:
  reconcile -h | --help
  reconcile --portalurl=<url> --portaltoken=<token>
            --glimsurl=<url>
            --glimstoken=<token>
            --projectmapping=<path>
            --redcapurl=<url>
            --redcaptoken=<token>
            --pdxurl=<url>
            --pdxemail=<email>
            --pdxtoken=<token>
            --pdxinstitution=<institution>
            --pdxbucket=<bucket>
            --limsbucket=<bucket>
            --limskey=<key>
            --limsscratch=<dir>
            --stagingroot=<dir>
            --awsprofile=<profile>
            --awsregion=<region>
            --awssessionduration=<seconds>
            --slackurl=<url>
            --tracerhost=<hostname>
            --tracerport=<port>
            --servicename=<name>
            --maxsubmissions=<n>
Options:
  -h --help                      Show this screen.
  --portalurl=<url>              The pipeline portal base URL.
  --portaltoken=<token>          The pipeline portal API token.
  --glimsurl=<url>               The lab registry base URL.
  --glimstoken=<token>           The lab registry API token.
  --projectmapping=<path>        Path to the project mapping file, hot-reloaded on change.
  --redcapurl=<url>              The clinical capture base URL.
  --redcaptoken=<token>          The clinical capture API token.
  --pdxurl=<url>                 The diagnostics service base URL.
  --pdxemail=<email>             The diagnostics service auth email.
  --pdxtoken=<token>             The diagnostics service auth token.
  --pdxinstitution=<institution> The diagnostics service institution.
  --pdxbucket=<bucket>           The diagnostics service intake S3 bucket.
  --limsbucket=<bucket>          The S3 bucket holding the tracking workbook.
  --limskey=<key>                The S3 key of the tracking workbook.
  --limsscratch=<dir>            Local scratch directory for staging the workbook.
  --stagingroot=<dir>            Root directory of staged sequencing run outputs.
  --awsprofile=<profile>         The AWS creds profile.
  --awsregion=<region>           The AWS region.
  --awssessionduration=<seconds> S3 client session lifetime before refresh.
  --slackurl=<url>               The URL of the slack channel for operator alerts.
  --tracerhost=<hostname>        OTel Tracer hostname.
  --tracerport=<port>            OTel Tracer port.
  --servicename=<name>           Service name used to display traces in backends.
  --maxsubmissions=<n>           Maximum case submissions per reconciliation pass.
`

func setupSignalListener(cancel context.CancelFunc) {

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		// block until signal is received
		s := <-c
		log.Printf("Got signal: '%s', shutting down ctTSO PierianDx Gateway...\n", s)
		cancel()
	}()
}

func handleError(err error, message string) {
	if err != nil {
		log.Fatalf("%s: %v", message, err)
	}
}

func main() {
	args, err := docopt.ParseDoc(usage)
	handleError(err, "Arguments cannot be parsed")

	var config cpg.Config
	err = args.Bind(&config)
	handleError(err, "Error binding arguments")

	ctx := context.Background()
	ctx, cancel := context.WithCancel(ctx)
	setupSignalListener(cancel)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	shutdownTracer, err := cpg.InitTracerProvider(ctx, config.OTELTracerHost, config.OTELTracerPort, config.ServiceName, "prod", logger)
	handleError(err, "Tracer provider cannot be created")
	defer shutdownTracer()
	tracer := otel.Tracer(config.ServiceName + "-tracer")

	mappingStore, err := cpg.NewProjectMappingStore(config.ProjectMappingPath, logger)
	handleError(err, "Project mapping store cannot be created")
	defer mappingStore.Close()

	portalService := cpg.NewPortalService(config.PortalBaseURL, config.PortalToken, cpg.DefaultRetryPolicy, logger)
	glimsService := cpg.NewGLIMSService(config.GLIMSBaseURL, config.GLIMSToken, cpg.DefaultRetryPolicy, mappingStore, logger)
	redcapService := cpg.NewRedCapService(config.RedCapBaseURL, config.RedCapToken, cpg.DefaultRetryPolicy, logger)
	pieriandxService := cpg.NewPierianDxService(config.PierianDxBaseURL, config.PierianDxEmail, config.PierianDxAuthToken, config.PierianDxInstitution, cpg.DefaultRetryPolicy, logger)
	awsS3Service := cpg.NewAWSS3Service(config.AWSProfile, config.AWSRegion, config.AWSSessionDuration)
	limsService := cpg.NewLimsService(awsS3Service, config.LimsBucket, config.LimsKey, config.LimsScratchDir, logger)

	reconcileService := cpg.NewReconcileService(portalService, glimsService, redcapService, pieriandxService, limsService, awsS3Service, cpg.SystemClock, config, logger)
	if err := reconcileService.Run(ctx, tracer); err != nil {
		log.Printf("Reconciliation pass failed: %v\n", err)
		os.Exit(1)
	}
	log.Println("Exiting ctTSO PierianDx Gateway...")

}
