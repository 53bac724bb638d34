package cttso_pieriandx_gateway

type Config struct {
	PortalBaseURL        string  `docopt:"--portalurl"`
	PortalToken          string  `docopt:"--portaltoken"`
	GLIMSBaseURL         string  `docopt:"--glimsurl"`
	GLIMSToken           string  `docopt:"--glimstoken"`
	ProjectMappingPath   string  `docopt:"--projectmapping"`
	RedCapBaseURL        string  `docopt:"--redcapurl"`
	RedCapToken          string  `docopt:"--redcaptoken"`
	PierianDxBaseURL     string  `docopt:"--pdxurl"`
	PierianDxEmail       string  `docopt:"--pdxemail"`
	PierianDxAuthToken   string  `docopt:"--pdxtoken"`
	PierianDxInstitution string  `docopt:"--pdxinstitution"`
	PierianDxBucket      string  `docopt:"--pdxbucket"`
	LimsBucket           string  `docopt:"--limsbucket"`
	LimsKey              string  `docopt:"--limskey"`
	LimsScratchDir       string  `docopt:"--limsscratch"`
	StagingRoot          string  `docopt:"--stagingroot"`
	AWSProfile           string  `docopt:"--awsprofile"`
	AWSRegion            string  `docopt:"--awsregion"`
	AWSSessionDuration   float64 `docopt:"--awssessionduration"`
	SlackURL             string  `docopt:"--slackurl"`
	OTELTracerHost       string  `docopt:"--tracerhost"`
	OTELTracerPort       int     `docopt:"--tracerport"`
	ServiceName          string  `docopt:"--servicename"`
	MaxSubmissions       int     `docopt:"--maxsubmissions"`
}

var TestConfig = Config{
	PortalBaseURL:        "",
	PortalToken:          "",
	GLIMSBaseURL:         "",
	GLIMSToken:           "",
	ProjectMappingPath:   "",
	RedCapBaseURL:        "",
	RedCapToken:          "",
	PierianDxBaseURL:     "",
	PierianDxEmail:       "",
	PierianDxAuthToken:   "",
	PierianDxInstitution: "",
	PierianDxBucket:      "",
	LimsBucket:           "",
	LimsKey:              "",
	LimsScratchDir:       "",
	StagingRoot:          "",
	AWSProfile:           "",
	AWSRegion:            "",
	AWSSessionDuration:   0,
	SlackURL:             "",
	OTELTracerHost:       "",
	OTELTracerPort:       0,
	ServiceName:          "",
	MaxSubmissions:       3,
}
