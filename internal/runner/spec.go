package runner

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	v1 "github.com/infracollect/imgbundle/apis/v1"
	"github.com/infracollect/imgbundle/internal/collectors/cloudflare"
	"github.com/samber/lo"
)

const (
	SinkStdout     = "stdout"
	SinkFilesystem = "filesystem"
	SinkS3         = "s3"
)

// ResolvedSpec holds a kind identifier and the spec for that kind.
type ResolvedSpec struct {
	Kind string
	Spec any
}

// ResolveCollectorSpec extracts the kind and spec of the export source.
func ResolveCollectorSpec(s v1.SourceSpec) (ResolvedSpec, error) {
	switch {
	case s.Cloudflare != nil:
		return ResolvedSpec{Kind: cloudflare.CollectorKind, Spec: s.Cloudflare}, nil
	default:
		return ResolvedSpec{}, errors.New("source has no type specified")
	}
}

// ResolveSinkSpec extracts the kind and spec of the archive destination.
// A missing output or sink selects stdout.
func ResolveSinkSpec(o *v1.OutputSpec) (ResolvedSpec, error) {
	if o == nil || o.Sink == nil {
		return ResolvedSpec{Kind: SinkStdout, Spec: &v1.StdoutSinkSpec{}}, nil
	}

	var set []ResolvedSpec
	if o.Sink.Stdout != nil {
		set = append(set, ResolvedSpec{Kind: SinkStdout, Spec: o.Sink.Stdout})
	}
	if o.Sink.Filesystem != nil {
		set = append(set, ResolvedSpec{Kind: SinkFilesystem, Spec: o.Sink.Filesystem})
	}
	if o.Sink.S3 != nil {
		set = append(set, ResolvedSpec{Kind: SinkS3, Spec: o.Sink.S3})
	}

	switch len(set) {
	case 0:
		return ResolvedSpec{}, errors.New("invalid sink configuration: no sink type specified")
	case 1:
		return set[0], nil
	default:
		kinds := lo.Map(set, func(s ResolvedSpec, _ int) string { return s.Kind })
		return ResolvedSpec{}, fmt.Errorf("invalid sink configuration: only one sink type may be set, got %s", strings.Join(kinds, ", "))
	}
}

// ParseOutputTarget turns a command line output target into an OutputSpec.
//
//	-                        stdout
//	s3://bucket[/prefix]     S3 bucket, optional key prefix
//	dir/name.zip             filesystem, archive named name.zip in dir
//	dir                      filesystem, default archive name in dir
func ParseOutputTarget(target string) (v1.OutputSpec, error) {
	switch {
	case target == "":
		return v1.OutputSpec{}, errors.New("output target is empty")

	case target == "-":
		return v1.OutputSpec{Sink: &v1.SinkSpec{Stdout: &v1.StdoutSinkSpec{}}}, nil

	case strings.HasPrefix(target, "s3://"):
		u, err := url.Parse(target)
		if err != nil {
			return v1.OutputSpec{}, fmt.Errorf("failed to parse output target '%s': %w", target, err)
		}
		if u.Host == "" {
			return v1.OutputSpec{}, fmt.Errorf("output target '%s' has no bucket", target)
		}

		var out v1.OutputSpec
		prefix := strings.Trim(u.Path, "/")
		if strings.HasSuffix(prefix, archiveExt) {
			out.Name = strings.TrimSuffix(path.Base(prefix), archiveExt)
			prefix = path.Dir(prefix)
			if prefix == "." {
				prefix = ""
			}
		}

		s3Spec := &v1.S3SinkSpec{Bucket: u.Host}
		if prefix != "" {
			s3Spec.Prefix = lo.ToPtr(prefix)
		}
		out.Sink = &v1.SinkSpec{S3: s3Spec}
		return out, nil

	case strings.HasSuffix(target, archiveExt):
		return v1.OutputSpec{
			Name: strings.TrimSuffix(filepath.Base(target), archiveExt),
			Sink: &v1.SinkSpec{Filesystem: &v1.FilesystemSinkSpec{Path: lo.ToPtr(filepath.Dir(target))}},
		}, nil

	default:
		return v1.OutputSpec{
			Sink: &v1.SinkSpec{Filesystem: &v1.FilesystemSinkSpec{Path: lo.ToPtr(target)}},
		}, nil
	}
}
