package v1

const ExportJobKind = "ExportJob"

type ExportJob struct {
	Kind     string        `yaml:"kind" json:"kind" validate:"required,eq=ExportJob"`
	Metadata Metadata      `yaml:"metadata" json:"metadata"`
	Spec     ExportJobSpec `yaml:"spec" json:"spec"`
}

type Metadata struct {
	Name string `yaml:"name" json:"name" validate:"required"`
}

type ExportJobSpec struct {
	Source   SourceSpec    `yaml:"source" json:"source"`
	Pipeline *PipelineSpec `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`
	Output   *OutputSpec   `yaml:"output,omitempty" json:"output,omitempty"`
}

// SourceSpec selects the catalog to export (one of the fields should be set).
type SourceSpec struct {
	Cloudflare *CloudflareCollector `yaml:"cloudflare,omitempty" json:"cloudflare,omitempty" validate:"required"`
}

type CloudflareCollector struct {
	Token       string `yaml:"token" json:"token" template:"" validate:"required"`
	AccountID   string `yaml:"account_id" json:"account_id" template:"" validate:"required"`
	AccountHash string `yaml:"account_hash" json:"account_hash" template:"" validate:"required"`

	APIBaseURL      *string `yaml:"api_base_url,omitempty" json:"api_base_url,omitempty" template:""`
	DeliveryBaseURL *string `yaml:"delivery_base_url,omitempty" json:"delivery_base_url,omitempty" template:""`

	// PerPage is forwarded to the listing request; the listing is never paged.
	PerPage *int `yaml:"per_page,omitempty" json:"per_page,omitempty" validate:"omitempty,min=1,max=10000"`
	// Timeout for the listing request, in seconds.
	Timeout *int              `yaml:"timeout,omitempty" json:"timeout,omitempty" validate:"omitempty,min=1"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

type PipelineSpec struct {
	BatchSize *int `yaml:"batch_size,omitempty" json:"batch_size,omitempty" validate:"omitempty,min=1"`
	FailFast  bool `yaml:"fail_fast,omitempty" json:"fail_fast,omitempty"`
	// FetchTimeout bounds each download's wait for data, in seconds.
	FetchTimeout *int `yaml:"fetch_timeout,omitempty" json:"fetch_timeout,omitempty" validate:"omitempty,min=1"`
	// Duplicates is one of rename (default), reject or overwrite.
	Duplicates string `yaml:"duplicates,omitempty" json:"duplicates,omitempty" validate:"omitempty,oneof=rename reject overwrite"`
	// Filter is a CEL expression over id, filename, uploaded,
	// requireSignedURLs, variants and meta.
	Filter           string `yaml:"filter,omitempty" json:"filter,omitempty"`
	CompressionLevel *int   `yaml:"compression_level,omitempty" json:"compression_level,omitempty" validate:"omitempty,min=-2,max=9"`
}

// OutputSpec configures where the archive is written.
type OutputSpec struct {
	// Name of the archive without extension (default: ${JOB_NAME}-${JOB_DATE_ISO8601}).
	Name string `yaml:"name,omitempty" json:"name,omitempty" template:""`

	// Sink configures the destination (default: stdout).
	Sink *SinkSpec `yaml:"sink,omitempty" json:"sink,omitempty"`
}

// SinkSpec configures the archive destination (one of the fields should be set).
type SinkSpec struct {
	Stdout     *StdoutSinkSpec     `yaml:"stdout,omitempty" json:"stdout,omitempty"`
	Filesystem *FilesystemSinkSpec `yaml:"filesystem,omitempty" json:"filesystem,omitempty"`
	S3         *S3SinkSpec         `yaml:"s3,omitempty" json:"s3,omitempty"`
}

// StdoutSinkSpec configures stdout output (no options currently).
type StdoutSinkSpec struct{}

type FilesystemSinkSpec struct {
	// Path is the base directory (default: working directory).
	Path   *string `yaml:"path,omitempty" json:"path,omitempty" template:""`
	Prefix *string `yaml:"prefix,omitempty" json:"prefix,omitempty" template:""`
}

type S3SinkSpec struct {
	Bucket         string         `yaml:"bucket" json:"bucket" template:"" validate:"required"`
	Region         *string        `yaml:"region,omitempty" json:"region,omitempty" template:""`
	Endpoint       *string        `yaml:"endpoint,omitempty" json:"endpoint,omitempty" template:""`
	Prefix         *string        `yaml:"prefix,omitempty" json:"prefix,omitempty" template:""`
	ForcePathStyle bool           `yaml:"force_path_style,omitempty" json:"force_path_style,omitempty"`
	PartSize       *int64         `yaml:"part_size,omitempty" json:"part_size,omitempty" validate:"omitempty,min=5242880"`
	Credentials    *S3Credentials `yaml:"credentials,omitempty" json:"credentials,omitempty"`
}

type S3Credentials struct {
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id" template:"" validate:"required"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key" template:"" validate:"required"`
}
